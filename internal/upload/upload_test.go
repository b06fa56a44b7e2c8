package upload

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartRequest(t *testing.T, files map[string][]byte, contentType string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	for filename, data := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="audio"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/conversation/voice", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestStageAudio(t *testing.T) {
	dir := t.TempDir()
	req := multipartRequest(t, map[string][]byte{"rec.webm": []byte("opus-data")}, "audio/webm;codecs=opus", map[string]string{"language": "hinglish"})

	staged, err := Stage(httptest.NewRecorder(), req, AudioOptions(dir))
	require.NoError(t, err)

	assert.Equal(t, int64(9), staged.Size)
	assert.Equal(t, "rec.webm", staged.Filename)
	assert.Equal(t, "audio/webm;codecs=opus", staged.ContentType)
	assert.Equal(t, "hinglish", req.FormValue("language"))

	data, err := staged.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "opus-data", string(data))

	require.NoError(t, staged.Release())
	require.NoError(t, staged.Release())
	_, err = os.Stat(staged.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestStageRejections(t *testing.T) {
	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
		want error
	}{
		{
			name: "no file",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, nil, "", map[string]string{"language": "english"})
			},
			want: ErrMissingFile,
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/conversation/voice", bytes.NewBufferString(`{}`))
			},
			want: ErrMissingFile,
		},
		{
			name: "wrong type",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, map[string][]byte{"notes.txt": []byte("hi")}, "text/plain", nil)
			},
			want: ErrWrongType,
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, map[string][]byte{"big.webm": make([]byte, 64)}, "audio/webm", nil)
			},
			want: ErrTooLarge,
		},
		{
			name: "two files",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, map[string][]byte{"a.webm": []byte("a"), "b.webm": []byte("b")}, "audio/webm", nil)
			},
			want: ErrTooManyFiles,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := AudioOptions(t.TempDir())
			opts.MaxBytes = 32
			_, err := Stage(httptest.NewRecorder(), tt.req(t), opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
