package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("ChatCompletions", func() {
	var (
		server  *ghttp.Server
		scanner *ChatCompletions
		req     PageRequest
		body    []byte
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner, err = NewChatCompletions(server.URL()+"/v1/chat/completions", 0)
		Expect(err).NotTo(HaveOccurred())

		req = PageRequest{
			APIKey:  "secret",
			Model:   "gemini-3-flash",
			Page:    Page{PNG: []byte("png-bytes")},
			Column:  "quantity",
			Comment: "ignore totals",
		}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		body, err = scanner.ScanPage(context.Background(), req)
	})

	When("the endpoint answers 200", func() {
		var received chatRequest

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer secret"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					data, _ := io.ReadAll(r.Body)
					Expect(json.Unmarshal(data, &received)).To(Succeed())
				},
				ghttp.RespondWith(http.StatusOK, `{"choices":[{"message":{"content":"[]"}}]}`),
			))
		})

		It("returns the raw body", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(`{"choices":[{"message":{"content":"[]"}}]}`))
		})

		It("sends one user message with text and image parts", func() {
			Expect(received.Model).To(Equal("gemini-3-flash"))
			Expect(received.Temperature).To(BeZero())
			Expect(received.Messages).To(HaveLen(1))
			Expect(received.Messages[0].Role).To(Equal("user"))

			content := received.Messages[0].Content
			Expect(content).To(HaveLen(2))
			Expect(content[0].Type).To(Equal("text"))
			Expect(content[0].Text).To(ContainSubstring(`value in column "quantity"`))
			Expect(content[0].Text).To(ContainSubstring(" ignore totals."))
			Expect(content[1].Type).To(Equal("image_url"))
			Expect(content[1].ImageURL.URL).To(Equal(req.Page.DataURL()))
		})
	})

	When("the endpoint answers with an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusPaymentRequired, "out of credits"))
		})

		It("returns an APIError with status text and body", func() {
			var apiErr *APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(http.StatusPaymentRequired))
			Expect(apiErr.Error()).To(Equal("API request failed: Payment Required - out of credits"))
		})
	})

	When("no API key is given", func() {
		BeforeEach(func() {
			req.APIKey = ""
		})

		It("fails before calling the endpoint", func() {
			Expect(err).To(MatchError(ErrMissingAPIKey))
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})

	When("the endpoint is unreachable", func() {
		BeforeEach(func() {
			server.Close()
		})

		It("returns the transport error", func() {
			Expect(err).To(MatchError(ContainSubstring("calling chat completions API")))
		})
	})
})
