package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const fixturePage = `<html><body>
<table>
<tr><th>Sản phẩm</th><th>ĐVT</th><th>Mua vào</th><th>Bán ra</th></tr>
<tr><td>BẠC 999 1KG</td><td>Kg</td><td>1.020.000</td><td>1.050.000</td></tr>
<tr><td>BẠC MIẾNG 1 LƯỢNG</td><td>Lượng</td><td>38.250</td><td>-</td></tr>
<tr><td>VÀNG SJC 1 LƯỢNG</td><td>Lượng</td><td>78.900.000</td><td>79.500.000</td></tr>
<tr><td>BẠC NGUYÊN LIỆU</td><td>Kg</td><td>-</td><td>990.000</td></tr>
<tr><td>BẠC VỤN</td><td>Kg</td></tr>
</table>
</body></html>`

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1.234.000", 1234000},
		{"1,234,000", 1234000},
		{" 38.250 ", 38250},
		{"990000", 990000},
		{"-", 0},
		{"", 0},
		{"n/a", 0},
	}
	for _, c := range cases {
		if got := parsePrice(c.in); got != c.want {
			t.Errorf("parsePrice(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseSnapshotFiltersAndAdmits(t *testing.T) {
	now := time.Now()
	snapshot, err := parseSnapshot(strings.NewReader(fixturePage), "BẠC", now)
	if err != nil {
		t.Fatalf("parseSnapshot: %v", err)
	}

	// The gold row, the row without a buy price, and the short row are
	// all excluded.
	if len(snapshot.Prices) != 2 {
		t.Fatalf("expected 2 records, got %d: %v", len(snapshot.Prices), snapshot.ProductNames())
	}

	kg, ok := snapshot.Prices["BẠC 999 1KG"]
	if !ok {
		t.Fatal("expected BẠC 999 1KG record")
	}
	if kg.BuyPrice != 1020000 || kg.SellPrice != 1050000 {
		t.Errorf("unexpected prices: buy=%d sell=%d", kg.BuyPrice, kg.SellPrice)
	}
	if kg.Unit != "Kg" {
		t.Errorf("unexpected unit: %q", kg.Unit)
	}
	if !kg.ObservedAt.Equal(now) {
		t.Errorf("unexpected observation time: %v", kg.ObservedAt)
	}

	luong, ok := snapshot.Prices["BẠC MIẾNG 1 LƯỢNG"]
	if !ok {
		t.Fatal("expected BẠC MIẾNG 1 LƯỢNG record")
	}
	if luong.SellPrice != 0 {
		t.Errorf("dash sell price should parse to 0, got %d", luong.SellPrice)
	}
	if luong.HasSellPrice() {
		t.Error("record with dash sell price should report no sell price")
	}
}

func TestParseSnapshotNoFilterKeepsAllAdmittedRows(t *testing.T) {
	snapshot, err := parseSnapshot(strings.NewReader(fixturePage), "", time.Now())
	if err != nil {
		t.Fatalf("parseSnapshot: %v", err)
	}
	if len(snapshot.Prices) != 3 {
		t.Fatalf("expected 3 records without filter, got %d", len(snapshot.Prices))
	}
	if _, ok := snapshot.Prices["VÀNG SJC 1 LƯỢNG"]; !ok {
		t.Error("gold row should be admitted when no filter is set")
	}
}

func TestParseSnapshotEmptyPage(t *testing.T) {
	snapshot, err := parseSnapshot(strings.NewReader("<html><body><p>bảo trì</p></body></html>"), "BẠC", time.Now())
	if err != nil {
		t.Fatalf("parseSnapshot: %v", err)
	}
	if !snapshot.Empty() {
		t.Errorf("expected empty snapshot, got %d records", len(snapshot.Prices))
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if got := r.Header.Get("User-Agent"); !strings.Contains(got, "silverwatch") {
			t.Errorf("unexpected User-Agent: %q", got)
		}
		w.Write([]byte(fixturePage))
	}))
	defer srv.Close()

	client := NewClient(Config{
		URL:            srv.URL,
		UserAgent:      "silverwatch/1.0",
		MaxRetries:     3,
		RetryDelayBase: time.Millisecond,
		ProductFilter:  "BẠC",
		Timezone:       "Asia/Ho_Chi_Minh",
	})

	snapshot, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if requests != 3 {
		t.Errorf("expected 3 requests, got %d", requests)
	}
	if len(snapshot.Prices) != 2 {
		t.Errorf("expected 2 records, got %d", len(snapshot.Prices))
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(Config{
		URL:            srv.URL,
		MaxRetries:     2,
		RetryDelayBase: time.Millisecond,
		Timezone:       "Asia/Ho_Chi_Minh",
	})

	if _, err := client.Fetch(context.Background()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestParseSnapshotAdmittedRecordsAreValid(t *testing.T) {
	snapshot, err := parseSnapshot(strings.NewReader(fixturePage), "", time.Now())
	if err != nil {
		t.Fatalf("parseSnapshot: %v", err)
	}
	if snapshot.Empty() {
		t.Fatal("expected admitted records")
	}
	for name, record := range snapshot.Prices {
		if err := record.Validate(); err != nil {
			t.Errorf("admitted record %q fails validation: %v", name, err)
		}
	}
}
