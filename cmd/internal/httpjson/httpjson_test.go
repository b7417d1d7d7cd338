package httpjson

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestErrorBody(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, http.StatusForbidden, "forbidden", "not a participant")

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status=%d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "forbidden" || body.Error.Message != "not a participant" {
		t.Fatalf("body=%+v", body)
	}
}

func TestDecode(t *testing.T) {
	type req struct {
		Name string `json:"name"`
	}

	cases := []struct {
		name    string
		body    string
		max     int64
		wantErr bool
	}{
		{name: "ok", body: `{"name":"a"}`},
		{name: "unknown field", body: `{"name":"a","x":1}`, wantErr: true},
		{name: "trailing data", body: `{"name":"a"}{}`, wantErr: true},
		{name: "too large", body: `{"name":"` + strings.Repeat("a", 64) + `"}`, max: 16, wantErr: true},
		{name: "not json", body: `name=a`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dst req
			err := Decode(httptest.NewRecorder(), r, tc.max, &dst)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}
