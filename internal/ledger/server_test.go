package ledger

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/finance-tracker/internal/category"
	"github.com/zombor/finance-tracker/internal/extract"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		recognizer  *mockRecognizer
		pdfText     *mockTextExtractor
		serviceOpts []ServiceOption
		auth        Auth
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		recognizer = &mockRecognizer{storage: storage, text: groceryReceipt}
		pdfText = &mockTextExtractor{storage: storage, text: statementText}
		serviceOpts = nil
		auth = Auth{}
	})

	JustBeforeEach(func() {
		reg := prometheus.NewRegistry()
		opts := append([]ServiceOption{WithMetrics(NewMetrics(reg))}, serviceOpts...)
		service := NewServiceWithDeps(db, Engines{OCR: recognizer, PDF: pdfText}, storage, newTestExtractor(), &mockIDGenerator{}, &mockTimeSource{now: testNow}, opts...)
		server = NewServerWithMux(service, auth, http.NewServeMux(),
			WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	do := func(method, path string, body io.Reader, headers ...string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	doJSON := func(method, path string, v interface{}) *http.Response {
		data, err := json.Marshal(v)
		Expect(err).NotTo(HaveOccurred())
		return do(method, path, bytes.NewReader(data), "Content-Type", "application/json")
	}

	upload := func(filename, contentType string, data []byte) *http.Response {
		var b bytes.Buffer
		writer := multipart.NewWriter(&b)
		var part io.Writer
		var err error
		if contentType == "" {
			part, err = writer.CreateFormFile("file", filename)
		} else {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
			h.Set("Content-Type", contentType)
			part, err = writer.CreatePart(h)
		}
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())
		return do("POST", "/api/uploads", &b, "Content-Type", writer.FormDataContentType())
	}

	decode := func(resp *http.Response, v interface{}) {
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, v)).To(Succeed(), string(body))
	}

	errorMessage := func(resp *http.Response) string {
		var body map[string]string
		decode(resp, &body)
		return body["error"]
	}

	seed := func(userID string, txns ...*Transaction) {
		for _, txn := range txns {
			txn.UserID = userID
		}
		Expect(db.SaveTransactions(txns)).To(Succeed())
	}

	Describe("handleHealth", func() {
		BeforeEach(func() {
			auth = Auth{Username: "user", Password: "pass"}
		})

		It("responds without credentials", func() {
			resp := do("GET", "/healthz", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("handleUpload", func() {
		When("a receipt photo is uploaded without a specific media type", func() {
			It("guesses the type from the extension and returns the suggestion", func() {
				resp := upload("receipt.jpg", "", []byte("fake image data"))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var result IngestResult
				decode(resp, &result)
				Expect(result.Kind).To(Equal(UploadReceipt))
				Expect(result.ExtractedData.MerchantName).To(Equal("WHOLE FOODS MARKET"))
				Expect(result.SuggestedTransaction.Amount).To(equalDecimal("20.00"))
				Expect(recognizer.contentType).To(Equal("image/jpeg"))
			})
		})

		When("a CSV export is uploaded", func() {
			It("returns the normalized transactions", func() {
				resp := upload("export.csv", "text/csv", []byte(bankCSV))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result IngestResult
				decode(resp, &result)
				Expect(result.Kind).To(Equal(UploadCSV))
				Expect(result.Count).To(Equal(3))
				Expect(result.Skipped).To(Equal(2))
				Expect(result.Transactions[0].Amount).To(equalDecimal("45.67"))
			})

			It("records ingestion metrics", func() {
				upload("export.csv", "text/csv", []byte(bankCSV))

				resp := do("GET", "/metrics", nil)
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring(`finance_tracker_uploads_total{kind="csv",outcome="success"} 1`))
				Expect(string(body)).To(ContainSubstring(`finance_tracker_extracted_records_total{kind="csv"} 3`))
				Expect(string(body)).To(ContainSubstring(`finance_tracker_skipped_records_total{kind="csv"} 2`))
			})
		})

		When("a PDF statement is uploaded", func() {
			It("returns the statement transactions", func() {
				resp := upload("statement.pdf", "application/pdf", []byte("%PDF-1.4"))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result IngestResult
				decode(resp, &result)
				Expect(result.Kind).To(Equal(UploadStatement))
				Expect(result.Count).To(Equal(3))
			})
		})

		When("the media type is not supported", func() {
			It("returns status Unsupported Media Type", func() {
				resp := upload("notes.txt", "text/plain", []byte("hello"))
				Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
				Expect(errorMessage(resp)).To(ContainSubstring("unsupported media type"))
			})
		})

		When("a generic upload has no known extension", func() {
			It("returns status Unsupported Media Type", func() {
				resp := upload("archive.bin", "", []byte("data"))
				Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
				Expect(recognizer.path).To(BeEmpty())
			})
		})

		When("the OCR engine fails", func() {
			BeforeEach(func() {
				recognizer.err = errors.New("model not loaded")
			})

			It("returns status Bad Gateway with the engine message", func() {
				resp := upload("receipt.png", "image/png", []byte("png"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				Expect(errorMessage(resp)).To(ContainSubstring("model not loaded"))
			})
		})

		When("the PDF engine fails", func() {
			BeforeEach(func() {
				pdfText.err = errors.New("encrypted document")
			})

			It("returns status Bad Gateway", func() {
				resp := upload("statement.pdf", "application/pdf", []byte("%PDF"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				Expect(errorMessage(resp)).To(ContainSubstring("encrypted document"))
			})
		})

		When("the ingestion times out", func() {
			BeforeEach(func() {
				recognizer.block = true
				serviceOpts = []ServiceOption{WithIngestTimeout(10 * time.Millisecond)}
			})

			It("returns status Gateway Timeout", func() {
				resp := upload("receipt.jpg", "image/jpeg", []byte("jpeg"))
				Expect(resp.StatusCode).To(Equal(http.StatusGatewayTimeout))
			})
		})

		When("no file is provided", func() {
			It("returns status Bad Request", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				Expect(writer.WriteField("other", "value")).To(Succeed())
				Expect(writer.Close()).To(Succeed())

				resp := do("POST", "/api/uploads", &b, "Content-Type", writer.FormDataContentType())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(ContainSubstring("No file was selected"))
			})
		})

		When("the body is not a multipart form", func() {
			It("returns status Bad Request", func() {
				resp := do("POST", "/api/uploads", bytes.NewBufferString("plain"), "Content-Type", "text/plain")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(Equal("Error parsing form"))
			})
		})
	})

	Describe("handleCreateTransactions", func() {
		When("a single transaction is posted", func() {
			It("returns status Created with the saved record", func() {
				resp := doJSON("POST", "/api/transactions", validInput())
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var saved []*Transaction
				decode(resp, &saved)
				Expect(saved).To(HaveLen(1))
				Expect(saved[0].UserID).To(Equal(LocalUser))
				Expect(saved[0].Amount).To(equalDecimal("45.67"))
				Expect(db.transactions).To(HaveKey(LocalUser + "/" + saved[0].ID))
			})
		})

		When("a batch is posted", func() {
			It("saves every transaction", func() {
				second := validInput()
				second.Source = SourceCSV
				resp := doJSON("POST", "/api/transactions", []TransactionInput{validInput(), second})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var saved []*Transaction
				decode(resp, &saved)
				Expect(saved).To(HaveLen(2))
			})
		})

		When("a candidate is invalid", func() {
			It("returns status Bad Request naming the field", func() {
				input := validInput()
				input.Amount = input.Amount.Neg()
				resp := doJSON("POST", "/api/transactions", input)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(ContainSubstring("amount"))
				Expect(db.transactions).To(BeEmpty())
			})
		})

		When("the body is not JSON", func() {
			It("returns status Bad Request", func() {
				resp := do("POST", "/api/transactions", bytes.NewBufferString("{nope"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(Equal("Invalid request body"))
			})
		})
	})

	Describe("handleListTransactions", func() {
		BeforeEach(func() {
			seed(LocalUser,
				&Transaction{ID: "a", Date: day(2024, 1, 10), Kind: extract.KindExpense, Category: category.FoodDining},
				&Transaction{ID: "b", Date: day(2024, 1, 20), Kind: extract.KindIncome, Category: category.Salary},
			)
		})

		When("no filter is given", func() {
			It("returns all transactions newest first", func() {
				resp := do("GET", "/api/transactions", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var txns []*Transaction
				decode(resp, &txns)
				Expect(txns).To(HaveLen(2))
				Expect(txns[0].ID).To(Equal("b"))
			})
		})

		When("filtering by kind and date", func() {
			It("returns the matching transactions", func() {
				resp := do("GET", "/api/transactions?kind=expense&from=2024-01-01&to=2024-01-31", nil)
				var txns []*Transaction
				decode(resp, &txns)
				Expect(txns).To(HaveLen(1))
				Expect(txns[0].ID).To(Equal("a"))
			})
		})

		When("the kind is unknown", func() {
			It("returns status Bad Request", func() {
				resp := do("GET", "/api/transactions?kind=transfer", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the date is malformed", func() {
			It("returns status Bad Request", func() {
				resp := do("GET", "/api/transactions?from=01/01/2024", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(ContainSubstring("from must be a YYYY-MM-DD date"))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("disk on fire")
			})

			It("hides the internal error", func() {
				resp := do("GET", "/api/transactions", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(errorMessage(resp)).To(Equal("Internal server error"))
			})
		})
	})

	Describe("handleGetTransaction", func() {
		BeforeEach(func() {
			seed(LocalUser, &Transaction{ID: "t1", Description: "Coffee"})
		})

		When("the transaction exists", func() {
			It("returns it", func() {
				resp := do("GET", "/api/transactions/t1", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var txn Transaction
				decode(resp, &txn)
				Expect(txn.Description).To(Equal("Coffee"))
			})
		})

		When("the transaction does not exist", func() {
			It("returns status Not Found", func() {
				resp := do("GET", "/api/transactions/missing", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleUpdateTransaction", func() {
		BeforeEach(func() {
			seed(LocalUser, &Transaction{ID: "t1", Description: "Coffee", Source: SourceReceipt})
		})

		When("the update is valid", func() {
			It("returns the updated record", func() {
				input := validInput()
				input.Description = "Edited"
				resp := doJSON("PUT", "/api/transactions/t1", input)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var txn Transaction
				decode(resp, &txn)
				Expect(txn.ID).To(Equal("t1"))
				Expect(txn.Description).To(Equal("Edited"))
				Expect(txn.Source).To(Equal(SourceReceipt))
			})
		})

		When("the transaction does not exist", func() {
			It("returns status Not Found", func() {
				resp := doJSON("PUT", "/api/transactions/missing", validInput())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})

		When("the update is invalid", func() {
			It("returns status Bad Request", func() {
				input := validInput()
				input.Kind = "transfer"
				resp := doJSON("PUT", "/api/transactions/t1", input)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleDeleteTransaction", func() {
		BeforeEach(func() {
			seed(LocalUser, &Transaction{ID: "t1"})
		})

		When("the transaction exists", func() {
			It("returns status No Content", func() {
				resp := do("DELETE", "/api/transactions/t1", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				Expect(db.transactions).To(BeEmpty())
			})
		})

		When("the transaction does not exist", func() {
			It("returns status Not Found", func() {
				resp := do("DELETE", "/api/transactions/missing", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleSummary", func() {
		BeforeEach(func() {
			seed(LocalUser,
				&Transaction{ID: "1", Date: day(2024, 1, 5), Kind: extract.KindIncome, Category: category.Salary, Amount: dec("100")},
				&Transaction{ID: "2", Date: day(2024, 1, 6), Kind: extract.KindExpense, Category: category.Shopping, Amount: dec("40")},
			)
		})

		When("the range is valid", func() {
			It("returns the totals", func() {
				resp := do("GET", "/api/analytics/summary?from=2024-01-01&to=2024-01-31", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var summary Summary
				decode(resp, &summary)
				Expect(summary.Balance).To(equalDecimal("60"))
				Expect(summary.ByCategory[category.Shopping]).To(equalDecimal("40"))
			})
		})

		When("to is before from", func() {
			It("returns status Bad Request", func() {
				resp := do("GET", "/api/analytics/summary?from=2024-02-01&to=2024-01-01", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("categories", func() {
		When("a new category is posted", func() {
			It("returns status Created", func() {
				resp := doJSON("POST", "/api/categories", map[string]string{"name": "Pets"})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(db.categories[LocalUser]).To(Equal([]string{"Pets"}))
			})
		})

		When("the category already exists", func() {
			It("returns status Bad Request", func() {
				resp := doJSON("POST", "/api/categories", map[string]string{"name": "Travel"})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorMessage(resp)).To(ContainSubstring("already exists"))
			})
		})

		When("listing", func() {
			BeforeEach(func() {
				db.categories[LocalUser] = []string{"Pets"}
			})

			It("returns fixed and custom categories", func() {
				resp := do("GET", "/api/categories", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var categories Categories
				decode(resp, &categories)
				Expect(categories.Custom).To(Equal([]string{"Pets"}))
				Expect(categories.Expense).To(ContainElement(category.Other))
			})
		})
	})

	Describe("handleListImports", func() {
		It("returns the import history after an upload", func() {
			upload("export.csv", "text/csv", []byte(bankCSV))

			resp := do("GET", "/api/imports", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var records []*ImportRecord
			decode(resp, &records)
			Expect(records).To(HaveLen(1))
			Expect(records[0].Filename).To(Equal("export.csv"))
			Expect(records[0].Count).To(Equal(3))
		})
	})

	Describe("authentication", func() {
		secret := []byte("test-secret")

		signed := func(key []byte, subject string) string {
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
				Subject:   subject,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			})
			s, err := token.SignedString(key)
			Expect(err).NotTo(HaveOccurred())
			return s
		}

		basic := func(user, pass string) string {
			return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
		}

		BeforeEach(func() {
			auth = Auth{Username: "user", Password: "pass", JWTSecret: secret}
		})

		When("no credentials are provided", func() {
			It("returns status Unauthorized", func() {
				resp := do("GET", "/api/transactions", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			})
		})

		When("valid basic credentials are provided", func() {
			It("acts as the basic auth user", func() {
				resp := doJSON("POST", "/api/transactions", validInput())
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))

				data, _ := json.Marshal(validInput())
				resp = do("POST", "/api/transactions", bytes.NewReader(data), "Authorization", basic("user", "pass"))
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var saved []*Transaction
				decode(resp, &saved)
				Expect(saved[0].UserID).To(Equal("user"))
			})
		})

		When("invalid basic credentials are provided", func() {
			It("returns status Unauthorized", func() {
				resp := do("GET", "/api/transactions", nil, "Authorization", basic("user", "wrong"))
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		When("a valid bearer token is provided", func() {
			It("acts as the token subject", func() {
				seed("alice", &Transaction{ID: "t1"})
				seed("bob", &Transaction{ID: "t2"})

				resp := do("GET", "/api/transactions", nil, "Authorization", "Bearer "+signed(secret, "alice"))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var txns []*Transaction
				decode(resp, &txns)
				Expect(txns).To(HaveLen(1))
				Expect(txns[0].ID).To(Equal("t1"))
			})
		})

		When("the token is signed with another key", func() {
			It("returns status Unauthorized", func() {
				resp := do("GET", "/api/transactions", nil, "Authorization", "Bearer "+signed([]byte("other"), "alice"))
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		When("the token has no subject", func() {
			It("returns status Unauthorized", func() {
				resp := do("GET", "/api/transactions", nil, "Authorization", "Bearer "+signed(secret, ""))
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})
	})

	Describe("middleware", func() {
		It("answers CORS preflight requests", func() {
			resp := do("OPTIONS", "/api/transactions", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("echoes the request ID", func() {
			resp := do("GET", "/healthz", nil, "X-Request-ID", "req-42")
			Expect(resp.Header.Get("X-Request-ID")).To(Equal("req-42"))
		})

		It("generates a request ID when none is sent", func() {
			resp := do("GET", "/healthz", nil)
			Expect(resp.Header.Get("X-Request-ID")).NotTo(BeEmpty())
		})
	})
})
