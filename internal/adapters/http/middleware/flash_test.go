package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var testHashKey = []byte("0123456789abcdef0123456789abcdef")

func TestFlasher_SetThenPop(t *testing.T) {
	f := NewFlasher(testHashKey, false)

	rr := httptest.NewRecorder()
	f.Set(rr, Flash{Category: FlashSuccess, Message: "Login successful!"})

	req := httptest.NewRequest("GET", "/dashboard", nil)
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}

	rr2 := httptest.NewRecorder()
	got := f.Pop(rr2, req)
	if len(got) != 1 || got[0].Message != "Login successful!" || got[0].Category != FlashSuccess {
		t.Fatalf("Pop = %+v", got)
	}
	cleared := rr2.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Errorf("flash cookie not cleared: %+v", cleared)
	}
}

func TestFlasher_RejectsTamperedCookie(t *testing.T) {
	f := NewFlasher(testHashKey, false)
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: flashCookieName, Value: "not-signed"})

	if got := f.Pop(httptest.NewRecorder(), req); got != nil {
		t.Errorf("Pop = %+v, want nil", got)
	}
}

func TestFlasher_PopWithoutCookie(t *testing.T) {
	f := NewFlasher(testHashKey, false)
	rr := httptest.NewRecorder()
	if got := f.Pop(rr, httptest.NewRequest("GET", "/", nil)); got != nil {
		t.Errorf("Pop = %+v, want nil", got)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Error("no cookie should be written when nothing is pending")
	}
}
