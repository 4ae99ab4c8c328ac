package contenthash

import (
	"strings"
	"testing"
)

func TestSum(t *testing.T) {
	// sha256("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := Sum([]byte("hello")); got != want {
		t.Errorf("Sum(hello) = %q, want %q", got, want)
	}
}

func TestSum_empty(t *testing.T) {
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != want {
		t.Errorf("Sum(nil) = %q, want %q", got, want)
	}
}

func TestHasher_matchesSum(t *testing.T) {
	h := New()
	_, _ = h.Write([]byte("a@foo.com\n"))
	_, _ = h.Write([]byte("b@bar.org\n"))
	if got, want := h.Sum(), Sum([]byte("a@foo.com\nb@bar.org\n")); got != want {
		t.Errorf("streamed sum %q != one-shot sum %q", got, want)
	}
	if h.Size() != 20 {
		t.Errorf("Size() = %d, want 20", h.Size())
	}
}

func TestReader(t *testing.T) {
	sum, n, err := Reader(strings.NewReader("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 || sum != Sum([]byte("hello")) {
		t.Errorf("Reader() = %q, %d", sum, n)
	}
}
