package resume

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadtriage/pkg/testutil"
)

func TestHandleGet(t *testing.T) {
	s := newStorage(t, 0)
	url, err := s.Save(context.Background(), bytes.NewReader(samplePDF))
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHandler(s, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)

	t.Run("serves stored file", func(t *testing.T) {
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, url))
		testutil.AssertStatusOK(t, rr)
		assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
		assert.Equal(t, samplePDF, rr.Body.Bytes())
	})

	t.Run("unknown file is 404", func(t *testing.T) {
		missing := URLPrefix + strings.Repeat("0", 8) + "-0000-4000-8000-000000000000.pdf"
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, missing))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found", "Resume not found")
	})
}
