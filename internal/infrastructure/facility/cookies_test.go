package facility

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCookieSet(t *testing.T) {
	t.Run("newer value supersedes in place", func(t *testing.T) {
		cs := &CookieSet{}
		first := http.Header{}
		first.Add("Set-Cookie", "visitor=v1; Path=/")
		first.Add("Set-Cookie", "session=pre; Path=/; HttpOnly")
		cs.AddResponse(first)

		second := http.Header{}
		second.Add("Set-Cookie", "session=post; Path=/")
		second.Add("Set-Cookie", "remember=1")
		cs.AddResponse(second)

		assert.Equal(t, 4, cs.Len(), "no hop's cookie is dropped")
		assert.Equal(t, "visitor=v1; session=post; remember=1", cs.Header())
	})

	t.Run("malformed set-cookie is ignored", func(t *testing.T) {
		cs := &CookieSet{}
		h := http.Header{}
		h.Add("Set-Cookie", "=novalue")
		h.Add("Set-Cookie", "ok=1")
		cs.AddResponse(h)
		assert.Equal(t, "ok=1", cs.Header())
	})

	t.Run("round trips through the header form", func(t *testing.T) {
		cs := ParseCookieHeader("a=1; b=x=y;  ; c=3")
		assert.Equal(t, "a=1; b=x=y; c=3", cs.Header())

		req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
		cs.Apply(req)
		assert.Equal(t, "a=1; b=x=y; c=3", req.Header.Get("Cookie"))
	})

	t.Run("empty set adds no header", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
		(&CookieSet{}).Apply(req)
		assert.Empty(t, req.Header.Get("Cookie"))
	})
}
