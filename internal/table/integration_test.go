package table_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/tablescan/internal/scanning"
	"github.com/zombor/tablescan/internal/table"
)

func completion(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func pngPart(writer *multipart.Writer, name string) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, name))
	h.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(h)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write([]byte("\x89PNG " + name))
	Expect(err).NotTo(HaveOccurred())
}

var _ = Describe("Integration", func() {
	var (
		model     *ghttp.Server
		db        *table.BoltDB
		app       *httptest.Server
		pagesPath string
	)

	BeforeEach(func() {
		model = ghttp.NewServer()

		tempDir := GinkgoT().TempDir()
		pagesPath = filepath.Join(tempDir, "pages")

		var err error
		db, err = table.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err := table.NewLocalStorage(pagesPath)
		Expect(err).NotTo(HaveOccurred())

		scanner, err := scanning.NewChatCompletions(model.URL()+"/v1/chat/completions", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		service := table.NewService(db, scanner, store, table.Config{})
		app = httptest.NewServer(table.NewServer(service, table.BasicAuth{}))
	})

	AfterEach(func() {
		app.Close()
		model.Close()
		db.Close()
	})

	scan := func(column string, files ...string) *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		Expect(writer.WriteField("column", column)).To(Succeed())
		for _, f := range files {
			pngPart(writer, f)
		}
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(app.URL+"/api/scans", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	put := func(path, payload string) *http.Response {
		req, err := http.NewRequest("PUT", app.URL+path, bytes.NewBufferString(payload))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	It("asks for a key, then scans two pages and exports the aggregated table", func() {
		By("rejecting a scan without a key")
		resp := scan("qty", "one.png")
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		resp.Body.Close()
		Expect(model.ReceivedRequests()).To(BeEmpty())

		By("storing the key")
		resp = put("/api/settings/api-key", `{"api_key":"sk-test"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		resp.Body.Close()

		By("scanning with the stored key")
		model.AppendHandlers(
			ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer sk-test"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, completion("```json\n[[\"P-1\",\"Pipe\",2],[\"P-2\",\"Elbow\",1]]\n```")),
			),
			ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/v1/chat/completions"),
				func(w http.ResponseWriter, r *http.Request) {
					body, err := io.ReadAll(r.Body)
					Expect(err).NotTo(HaveOccurred())
					Expect(string(body)).To(ContainSubstring(`Previous data extracted: [[\"P-1\",\"Pipe\",2],[\"P-2\",\"Elbow\",1]]`))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, completion(`[["P-1","Pipe","3"],["P-3","Tee",4]]`)),
			),
		)

		resp = scan("qty", "one.png", "two.png")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var scanned table.Table
		Expect(json.NewDecoder(resp.Body).Decode(&scanned)).To(Succeed())
		resp.Body.Close()

		Expect(scanned.Rows).To(Equal([]table.Row{
			{Code: "P-1", Description: "Pipe", Value: 5},
			{Code: "P-2", Description: "Elbow", Value: 1},
			{Code: "P-3", Description: "Tee", Value: 4},
		}))
		Expect(scanned.Pages).To(HaveLen(2))
		Expect(filepath.Join(pagesPath, scanned.Pages[1])).To(BeAnExistingFile())

		By("serving the CSV export")
		resp, err := http.Get(app.URL + "/api/table/export.csv")
		Expect(err).NotTo(HaveOccurred())
		csv, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(string(csv)).To(Equal(
			`"Product Code","Description","Quantity","Barcode"` + "\n" +
				`"P-1","Pipe","5",""` + "\n" +
				`"P-2","Elbow","1",""` + "\n" +
				`"P-3","Tee","4",""`,
		))
	})

	It("keeps the previous table when a page fails", func() {
		Expect(put("/api/settings/api-key", `{"api_key":"sk-test"}`).Body.Close()).To(Succeed())

		model.AppendHandlers(
			ghttp.RespondWithJSONEncoded(http.StatusOK, completion(`[["A","first",1]]`)),
			ghttp.RespondWithJSONEncoded(http.StatusOK, completion(`[["B","second",1]]`)),
			ghttp.RespondWith(http.StatusTooManyRequests, "slow down"),
		)

		resp := scan("qty", "one.png")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		resp.Body.Close()

		resp = scan("qty", "one.png", "two.png")
		Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
		var body map[string]string
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		resp.Body.Close()
		Expect(body["error"]).To(Equal("API request failed: Too Many Requests - slow down"))

		current, err := db.GetTable()
		Expect(err).NotTo(HaveOccurred())
		Expect(current.Rows).To(Equal([]table.Row{{Code: "A", Description: "first", Value: 1}}))
	})
})
