package scanning

import (
	"context"

	"github.com/google/generative-ai-go/genai"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("candidateEnvelope", func() {
	It("re-encodes text parts so the normalizer can read them", func() {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{
					Role:  "model",
					Parts: []genai.Part{genai.Text(`[["A","desc",5]]`)},
				},
			}},
		}

		body, err := candidateEnvelope(resp)
		Expect(err).NotTo(HaveOccurred())

		rows, err := ExtractRows(body)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(Equal([]Row{{Code: "A", Description: "desc", Value: 5}}))
	})

	It("produces an unrecognized envelope for an empty response", func() {
		body, err := candidateEnvelope(&genai.GenerateContentResponse{})
		Expect(err).NotTo(HaveOccurred())
		Expect(DecodeEnvelope(body)).To(BeAssignableToTypeOf(UnrecognizedEnvelope{}))
	})

	It("rejects a missing API key", func() {
		g, err := NewGemini(0)
		Expect(err).NotTo(HaveOccurred())
		_, err = g.ScanPage(context.Background(), PageRequest{})
		Expect(err).To(MatchError(ErrMissingAPIKey))
	})
})
