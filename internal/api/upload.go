package api

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"strings"

	"MailBlast/internal/csvparser"
	"MailBlast/internal/models"
)

const maxFieldBytes = 1 << 20

type uploadedFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

type submissionForm struct {
	values map[string]string
	files  map[string]*uploadedFile
}

func (f *submissionForm) value(name string) string {
	return f.values[name]
}

func (f *submissionForm) file(name string) *uploadedFile {
	return f.files[name]
}

// readSubmission streams the multipart body part by part. Reading stops as
// soon as a credential field arrives blank, so file parts sent after it are
// never read; the returned form then fails validation on credentials.
func readSubmission(r *http.Request) (*submissionForm, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}

	form := &submissionForm{
		values: make(map[string]string),
		files:  make(map[string]*uploadedFile),
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return form, nil
		}
		if err != nil {
			return nil, err
		}

		name := p.FormName()
		if name == "" {
			continue
		}

		if p.FileName() == "" {
			b, err := io.ReadAll(io.LimitReader(p, maxFieldBytes))
			if err != nil {
				return nil, err
			}
			if _, seen := form.values[name]; !seen {
				form.values[name] = string(b)
			}
			if form.credentialBlank() {
				return form, nil
			}
			continue
		}

		if _, seen := form.files[name]; seen {
			continue
		}
		content, err := io.ReadAll(p)
		if err != nil {
			return nil, err
		}
		form.files[name] = &uploadedFile{
			Filename:    p.FileName(),
			ContentType: mediaType(p.Header.Get("Content-Type")),
			Content:     content,
		}
	}
}

// credentialBlank reports whether a credential field has arrived empty.
// Credentials are checked first, so nothing after it can change the outcome.
func (f *submissionForm) credentialBlank() bool {
	for _, k := range []string{"senderEmail", "appPassword"} {
		if v, ok := f.values[k]; ok && strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

// mediaType returns the declared media type of an upload without parameters.
func mediaType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mt
}

func parseCSV(f *uploadedFile) (*csvparser.ParseResult, error) {
	return csvparser.ParseRecipients(bytes.NewReader(f.Content))
}

func (f *uploadedFile) attachment(contentType string) *models.Attachment {
	return &models.Attachment{
		Filename:    f.Filename,
		ContentType: contentType,
		Content:     f.Content,
	}
}
