package roddoc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/locguard/docquery"
)

func TestDocument_LiveChrome(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	if _, found := launcher.LookPath(); !found {
		t.Skip("no chrome binary")
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><ul>
			<li class="zp_row zp_a" data-testid="r1">one</li>
			<li class="zp_row">two</li>
			<li class="zp_row" style="display:none">three</li>
		</ul></body></html>`))
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mgr := NewManager(Config{Headless: true})
	if err := mgr.Start(ctx); err != nil {
		t.Skipf("chrome start: %v", err)
	}
	defer mgr.Close()

	doc, err := mgr.OpenPage(ctx)
	if err != nil {
		t.Fatalf("open page: %v", err)
	}
	defer doc.Close()

	if err := doc.Navigate(ctx, ts.URL, 30*time.Second); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	n, err := doc.Count(ctx, "li.zp_row")
	if err != nil || n != 3 {
		t.Fatalf("count: got %d (%v), want 3", n, err)
	}

	els, err := doc.Query(ctx, "li.zp_row")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	anc, err := els[0].Describe(ctx, 2)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if anc[0].Tag != "li" || anc[0].SiblingClassCounts["zp_row"] != 2 {
		t.Errorf("describe: got %+v", anc[0])
	}
	if v, _ := els[2].Visible(ctx); v {
		t.Error("hidden row reported visible")
	}
	if err := doc.WaitFor(ctx, ".missing", 200*time.Millisecond); !docquery.IsTimeout(err) {
		t.Errorf("wait missing: got %v, want timeout", err)
	}
}
