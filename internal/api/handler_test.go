package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"MailBlast/internal/drafting"
	"MailBlast/internal/email"
	"MailBlast/internal/models"
	"MailBlast/internal/validation"
	"MailBlast/internal/worker"
)

type fakeDispatcher struct {
	mu         sync.Mutex
	calls      int
	sub        *models.Submission
	recipients []models.RecipientRecord
	fail       map[string]bool
	err        error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, sub *models.Submission, recs []models.RecipientRecord) (*models.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sub = sub
	f.recipients = recs
	if f.err != nil {
		return nil, f.err
	}

	res := &models.BatchResult{BatchID: "batch-test"}
	for _, r := range recs {
		if f.fail[r.Email] {
			res.Failed++
			res.Outcomes = append(res.Outcomes, models.DispatchOutcome{Recipient: r.Email, Status: models.StatusFailed, FailureReason: "550 rejected"})
			continue
		}
		res.Sent++
		res.Outcomes = append(res.Outcomes, models.DispatchOutcome{Recipient: r.Email, Status: models.StatusSent})
	}
	return res, nil
}

type fakeDrafter struct {
	draft *drafting.Draft
	err   error
}

func (f *fakeDrafter) Draft(_ context.Context, _ drafting.Request) (*drafting.Draft, error) {
	return f.draft, f.err
}

type fakeScorer struct {
	out json.RawMessage
	err error
}

func (f *fakeScorer) Predict(_ context.Context, _ string) (json.RawMessage, error) {
	return f.out, f.err
}

type upload struct {
	name        string
	contentType string
	content     []byte
}

type sendForm struct {
	fields map[string]string
	csv    *upload
	cv     *upload
}

func validSendForm() sendForm {
	return sendForm{
		fields: map[string]string{
			"senderEmail": "me@gmail.com",
			"appPassword": "abcd efgh ijkl mnop",
			"description": "Dear hiring team, please find my CV attached.",
			"subject":     "",
		},
		csv: &upload{name: "recipients.csv", contentType: "text/csv", content: []byte("email,role\na@x.com,Eng\nnot-an-email,Eng\nb@y.com,\n")},
		cv:  &upload{name: "cv.pdf", contentType: "application/pdf", content: []byte("%PDF-1.4 test")},
	}
}

func (f sendForm) request(t *testing.T) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range f.fields {
		require.NoError(t, mw.WriteField(k, v))
	}

	for field, up := range map[string]*upload{"csvFile": f.csv, "cvFile": f.cv} {
		if up == nil {
			continue
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, up.name))
		h.Set("Content-Type", up.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(up.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/send-emails", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newTestHandler(d Dispatcher) *Handler {
	return &Handler{
		Validator:      validation.New(true),
		Dispatcher:     d,
		Scorer:         &fakeScorer{},
		MaxUploadBytes: 1 << 20,
		Log:            zap.NewNop(),
	}
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	Router(h, []string{"http://localhost:3000"}).ServeHTTP(rec, req)
	return rec
}

func decodeSend(t *testing.T, rec *httptest.ResponseRecorder) sendResponse {
	t.Helper()
	var resp sendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSendEmails_Success(t *testing.T) {
	d := &fakeDispatcher{}
	h := newTestHandler(d)

	rec := serve(h, validSendForm().request(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeSend(t, rec)
	assert.Equal(t, "Emails sent successfully!", resp.Message)
	assert.Equal(t, models.BatchCompleted, resp.Status)
	assert.Equal(t, 2, resp.Sent)
	assert.Zero(t, resp.Failed)
	assert.Equal(t, 1, resp.Skipped)

	require.Equal(t, 1, d.calls)
	assert.Equal(t, []models.RecipientRecord{
		{Email: "a@x.com", Role: "Eng"},
		{Email: "b@y.com", Role: models.DefaultRole},
	}, d.recipients)

	sub := d.sub
	assert.Equal(t, "me@gmail.com", sub.Credentials.Address)
	assert.Equal(t, "abcd efgh ijkl mnop", sub.Credentials.Secret)
	assert.Empty(t, sub.Subject)
	assert.Equal(t, "Dear hiring team, please find my CV attached.", sub.Body)
	require.NotNil(t, sub.Attachment)
	assert.Equal(t, "cv.pdf", sub.Attachment.Filename)
	assert.Equal(t, "application/pdf", sub.Attachment.ContentType)
	assert.Equal(t, []byte("%PDF-1.4 test"), sub.Attachment.Content)
}

func TestSendEmails_EndToEndDryRun(t *testing.T) {
	d := &worker.Dispatcher{Relay: email.NewLogRelay(zap.NewNop()), Workers: 2, Log: zap.NewNop()}
	h := newTestHandler(d)

	form := validSendForm()
	form.fields["subject"] = "Application"
	form.csv.content = []byte("Email,Role\none@a.io,Eng\ntwo@b.io,Ops\nthree@c.io,QA\n")

	rec := serve(h, form.request(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeSend(t, rec)
	assert.Equal(t, 3, resp.Sent)
	assert.Zero(t, resp.Failed)
	assert.NotEmpty(t, resp.BatchID)
	require.Len(t, resp.Outcomes, 3)
	assert.Equal(t, "one@a.io", resp.Outcomes[0].Recipient)
}

func TestSendEmails_ReportsPerRecipientFailures(t *testing.T) {
	d := &fakeDispatcher{fail: map[string]bool{"b@y.com": true}}
	h := newTestHandler(d)

	rec := serve(h, validSendForm().request(t))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeSend(t, rec)
	assert.Equal(t, "Emails sent with some failures.", resp.Message)
	assert.Equal(t, models.BatchPartialFailure, resp.Status)
	assert.Equal(t, 1, resp.Sent)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, models.DispatchOutcome{Recipient: "b@y.com", Status: models.StatusFailed, FailureReason: "550 rejected"}, resp.Outcomes[1])
}

func TestSendEmails_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*sendForm)
		want   string
	}{
		{
			name:   "empty sender",
			mutate: func(f *sendForm) { f.fields["senderEmail"] = "" },
			want:   "Email and App Password are required.",
		},
		{
			name:   "missing password",
			mutate: func(f *sendForm) { delete(f.fields, "appPassword") },
			want:   "Email and App Password are required.",
		},
		{
			name:   "missing csv",
			mutate: func(f *sendForm) { f.csv = nil },
			want:   "CSV file is required.",
		},
		{
			name:   "missing cv",
			mutate: func(f *sendForm) { f.cv = nil },
			want:   "CV file is required.",
		},
		{
			name:   "png cv",
			mutate: func(f *sendForm) { f.cv.contentType = "image/png" },
			want:   "Invalid CV file type.",
		},
		{
			name:   "missing description",
			mutate: func(f *sendForm) { f.fields["description"] = "  " },
			want:   "Description is required.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{}
			h := newTestHandler(d)

			form := validSendForm()
			tt.mutate(&form)

			rec := serve(h, form.request(t))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
			assert.Zero(t, d.calls)
		})
	}
}

type unreadableBody struct{ read *bool }

func (u unreadableBody) Read([]byte) (int, error) {
	*u.read = true
	return 0, errors.New("file body was read")
}

func TestSendEmails_BlankCredentialStopsBeforeFiles(t *testing.T) {
	d := &fakeDispatcher{}
	h := newTestHandler(d)

	var head bytes.Buffer
	mw := multipart.NewWriter(&head)
	require.NoError(t, mw.WriteField("senderEmail", ""))
	require.NoError(t, mw.WriteField("appPassword", "abcd efgh ijkl mnop"))
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="csvFile"; filename="recipients.csv"`)
	hdr.Set("Content-Type", "text/csv")
	_, err := mw.CreatePart(hdr)
	require.NoError(t, err)

	var fileRead bool
	body := io.MultiReader(&head, unreadableBody{read: &fileRead})

	req := httptest.NewRequest(http.MethodPost, "/api/send-emails", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := serve(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email and App Password are required.", rec.Body.String())
	assert.False(t, fileRead)
	assert.Zero(t, d.calls)
}

func TestSendEmails_FilesBeforeFields(t *testing.T) {
	d := &fakeDispatcher{}
	h := newTestHandler(d)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, up := range map[string]upload{
		"csvFile": {name: "list.csv", contentType: "text/csv", content: []byte("email\na@x.com\n")},
		"cvFile":  {name: "cv.pdf", contentType: "application/pdf", content: []byte("%PDF")},
	} {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, up.name))
		hdr.Set("Content-Type", up.contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(up.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("description", "Hello"))
	require.NoError(t, mw.WriteField("senderEmail", "me@gmail.com"))
	require.NoError(t, mw.WriteField("appPassword", "secret"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/send-emails", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, d.recipients, 1)
	assert.Equal(t, "a@x.com", d.recipients[0].Email)
	require.NotNil(t, d.sub.Attachment)
	assert.Equal(t, "cv.pdf", d.sub.Attachment.Filename)
}

func TestSendEmails_DocxWithParams(t *testing.T) {
	d := &fakeDispatcher{}
	h := newTestHandler(d)

	form := validSendForm()
	form.cv = &upload{
		name:        "cv.docx",
		contentType: validation.TypeDOCX + "; charset=binary",
		content:     []byte("PK"),
	}

	rec := serve(h, form.request(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, validation.TypeDOCX, d.sub.Attachment.ContentType)
}

func TestSendEmails_NoValidRecipients(t *testing.T) {
	for name, csv := range map[string]string{
		"header only":   "email,role\n",
		"all malformed": "email\nnope\nstill nope\n",
		"empty file":    "",
	} {
		t.Run(name, func(t *testing.T) {
			d := &fakeDispatcher{}
			h := newTestHandler(d)

			form := validSendForm()
			form.csv.content = []byte(csv)

			rec := serve(h, form.request(t))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "No valid emails found in CSV.", rec.Body.String())
			assert.Zero(t, d.calls)
		})
	}
}

func TestSendEmails_FatalErrorIsGeneric(t *testing.T) {
	d := &fakeDispatcher{err: fmt.Errorf("open relay session: %w: 535 bad credentials for me@gmail.com", email.ErrAuthRejected)}
	h := newTestHandler(d)

	rec := serve(h, validSendForm().request(t))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error sending emails.", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "abcd efgh")
	assert.NotContains(t, rec.Body.String(), "535")
}

func TestSendEmails_NotMultipart(t *testing.T) {
	d := &fakeDispatcher{}
	h := newTestHandler(d)

	req := httptest.NewRequest(http.MethodPost, "/api/send-emails", strings.NewReader(`{"senderEmail":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, d.calls)
}

func TestSendEmails_TooLarge(t *testing.T) {
	d := &fakeDispatcher{}
	h := newTestHandler(d)
	h.MaxUploadBytes = 512

	form := validSendForm()
	form.cv.content = bytes.Repeat([]byte("x"), 4096)

	rec := serve(h, form.request(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, d.calls)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{})

	for _, path := range []string{"/api/send-emails", "/api/generate", "/api/predict-score"} {
		rec := serve(h, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
}

func TestGenerateDraft(t *testing.T) {
	body := `{"name":"Ada","profession":"Engineer","skills":"Go","jobRole":"Backend","company":"Acme"}`

	t.Run("not configured", func(t *testing.T) {
		h := newTestHandler(&fakeDispatcher{})
		rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body)))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		h := newTestHandler(&fakeDispatcher{})
		h.Drafter = &fakeDrafter{draft: &drafting.Draft{Subject: "Hi", Body: "Hello"}}

		rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code)

		var d drafting.Draft
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
		assert.Equal(t, "Hi", d.Subject)
		assert.Equal(t, "Hello", d.Body)
	})

	t.Run("incomplete", func(t *testing.T) {
		h := newTestHandler(&fakeDispatcher{})
		h.Drafter = &fakeDrafter{err: drafting.ErrIncompleteRequest}

		rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("model failure", func(t *testing.T) {
		h := newTestHandler(&fakeDispatcher{})
		h.Drafter = &fakeDrafter{err: errors.New("quota exceeded")}

		rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body)))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "quota")
	})

	t.Run("bad json", func(t *testing.T) {
		h := newTestHandler(&fakeDispatcher{})
		h.Drafter = &fakeDrafter{}

		rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPredictScore(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newTestHandler(&fakeDispatcher{})
		h.Scorer = &fakeScorer{out: json.RawMessage(`{"score":0.9}`)}

		rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/predict-score", strings.NewReader(`{"email_description":"hello"}`)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"score":0.9}`, rec.Body.String())
	})

	t.Run("upstream failure", func(t *testing.T) {
		h := newTestHandler(&fakeDispatcher{})
		h.Scorer = &fakeScorer{err: errors.New("connection refused")}

		rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/predict-score", strings.NewReader(`{"email_description":"hello"}`)))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"Error predicting email score"}`, rec.Body.String())
	})

	t.Run("missing description", func(t *testing.T) {
		h := newTestHandler(&fakeDispatcher{})

		rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/predict-score", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	rec := serve(newTestHandler(&fakeDispatcher{}), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}
