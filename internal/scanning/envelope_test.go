package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DecodeEnvelope", func() {
	DescribeTable("classifies response shapes",
		func(body string, expected Envelope) {
			Expect(DecodeEnvelope([]byte(body))).To(Equal(expected))
		},
		Entry("content blocks with an image block first",
			`{"choices":[{"message":{"content_blocks":[{"type":"image_url"},{"type":"text","text":"[1]"}]}}]}`,
			ContentBlocksEnvelope{Text: "[1]"}),
		Entry("flat message content",
			`{"choices":[{"message":{"content":"[2]"}}]}`,
			MessageContentEnvelope{Text: "[2]"}),
		Entry("message content as typed blocks",
			`{"choices":[{"message":{"content":[{"type":"text","text":"[3]"}]}}]}`,
			MessageContentEnvelope{Text: "[3]"}),
		Entry("legacy choice text",
			`{"choices":[{"text":"[4]"}]}`,
			ChoiceTextEnvelope{Text: "[4]"}),
		Entry("null content falls through to choice text",
			`{"choices":[{"message":{"content":null},"text":"[5]"}]}`,
			ChoiceTextEnvelope{Text: "[5]"}),
		Entry("gemini candidates",
			`{"candidates":[{"content":{"parts":[{"text":"[6]"}]}}]}`,
			CandidateEnvelope{Text: "[6]"}),
		Entry("empty candidate text is still a candidate",
			`{"candidates":[{"content":{"parts":[{"text":""}]}}]}`,
			CandidateEnvelope{Text: ""}),
	)

	DescribeTable("reports unrecognized shapes",
		func(body string) {
			Expect(DecodeEnvelope([]byte(body))).To(BeAssignableToTypeOf(UnrecognizedEnvelope{}))
		},
		Entry("not JSON", `<html>bad gateway</html>`),
		Entry("empty object", `{}`),
		Entry("empty choices", `{"choices":[]}`),
		Entry("content blocks without text", `{"choices":[{"message":{"content_blocks":[{"type":"image_url"}],"content":"[1]"}}]}`),
		Entry("choices win over candidates", `{"choices":[{}],"candidates":[{"content":{"parts":[{"text":"[1]"}]}}]}`),
		Entry("candidate without parts", `{"candidates":[{"content":{"parts":[]}}]}`),
	)
})
