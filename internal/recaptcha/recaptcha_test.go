package recaptcha

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func siteverify(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerify_Success(t *testing.T) {
	srv := siteverify(t, 200, `{"success":true,"score":0.9,"action":"join_us_submit","hostname":"club.example"}`, func(r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s; want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("secret") != "s3cret" || r.PostForm.Get("response") != "tok" || r.PostForm.Get("remoteip") != "1.2.3.4" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
	})

	c := New("s3cret", WithVerifyURL(srv.URL))
	res, err := c.Verify(context.Background(), "tok", "1.2.3.4")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Score == nil || *res.Score != 0.9 || res.Hostname != "club.example" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestVerify_Rejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not successful", `{"success":false,"error-codes":["invalid-input-response"]}`},
		{"low score", `{"success":true,"score":0.3,"action":"join_us_submit"}`},
		{"wrong action", `{"success":true,"score":0.9,"action":"login"}`},
		{"no score", `{"success":true,"action":"join_us_submit"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := siteverify(t, 200, tc.body, nil)
			c := New("s3cret", WithVerifyURL(srv.URL))
			res, err := c.Verify(context.Background(), "tok", "")
			if !errors.Is(err, ErrRejected) {
				t.Fatalf("err=%v; want ErrRejected", err)
			}
			if res == nil {
				t.Fatal("rejections still return the decoded result")
			}
		})
	}
}

func TestVerify_ScoreAtThresholdPasses(t *testing.T) {
	srv := siteverify(t, 200, `{"success":true,"score":0.5,"action":"join_us_submit"}`, nil)
	if _, err := New("s", WithVerifyURL(srv.URL)).Verify(context.Background(), "tok", ""); err != nil {
		t.Fatalf("score equal to the minimum must pass, got %v", err)
	}
}

func TestVerify_CustomActionAndScore(t *testing.T) {
	srv := siteverify(t, 200, `{"success":true,"score":0.2,"action":"apply"}`, nil)
	c := New("s", WithVerifyURL(srv.URL), WithAction("apply"), WithMinScore(0.1))
	if _, err := c.Verify(context.Background(), "tok", ""); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// empty action disables the action check
	c = New("s", WithVerifyURL(srv.URL), WithAction(""), WithMinScore(0.1))
	if _, err := c.Verify(context.Background(), "tok", ""); err != nil {
		t.Fatalf("Verify without action: %v", err)
	}
}

func TestVerify_MissingSecret(t *testing.T) {
	called := false
	srv := siteverify(t, 200, `{}`, func(*http.Request) { called = true })
	_, err := New("  ", WithVerifyURL(srv.URL)).Verify(context.Background(), "tok", "")
	if !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("err=%v; want ErrMissingSecret", err)
	}
	if called {
		t.Fatal("must not call siteverify without a secret")
	}
}

func TestVerify_MissingToken(t *testing.T) {
	called := false
	srv := siteverify(t, 200, `{}`, func(*http.Request) { called = true })
	_, err := New("s", WithVerifyURL(srv.URL)).Verify(context.Background(), "   ", "")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err=%v; want ErrRejected", err)
	}
	if called {
		t.Fatal("must not call siteverify without a token")
	}
}

func TestVerify_UpstreamFailuresAreNotRejections(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := siteverify(t, 503, `oops`, nil)
		_, err := New("s", WithVerifyURL(srv.URL)).Verify(context.Background(), "tok", "")
		if err == nil || errors.Is(err, ErrRejected) {
			t.Fatalf("err=%v; want non-rejection error", err)
		}
	})
	t.Run("bad json", func(t *testing.T) {
		srv := siteverify(t, 200, `{not json`, nil)
		_, err := New("s", WithVerifyURL(srv.URL)).Verify(context.Background(), "tok", "")
		if err == nil || errors.Is(err, ErrRejected) {
			t.Fatalf("err=%v; want decode error", err)
		}
	})
	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		t.Cleanup(srv.Close)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := New("s", WithVerifyURL(srv.URL), WithHTTPClient(srv.Client())).Verify(ctx, "tok", "")
		if err == nil || errors.Is(err, ErrRejected) {
			t.Fatalf("err=%v; want deadline error", err)
		}
	})
}
