package cloud

import (
	"errors"
	"net/url"
	"testing"
)

func TestBuildLocationURL(t *testing.T) {
	got, err := BuildLocationURL("https://control.example.net", OperationUpload, "Cache", 0, "a b.txt")
	if err != nil {
		t.Fatal(err)
	}
	want := "https://control.example.net/api/v1/urls/upload?category=0&filename=a+b.txt&folder=Cache"
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}

	got, err = BuildLocationURL("http://localhost:8080/base/", OperationDownload, "MobileResource", 1000, "x.zip")
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(got)
	if u.Path != "/base/api/v1/urls/download" {
		t.Errorf("path = %s", u.Path)
	}
	if u.Query().Get("category") != "1000" || u.Query().Get("folder") != "MobileResource" {
		t.Errorf("query = %s", u.RawQuery)
	}
}

func TestBuildLocationURL_Errors(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		op     Operation
		folder string
		file   string
		want   error
	}{
		{"bad op", "https://h", "delete", "Cache", "a", ErrInvalidOperation},
		{"empty folder", "https://h", OperationUpload, "", "a", ErrEmptyFolder},
		{"empty file", "https://h", OperationUpload, "Cache", "", ErrEmptyFileName},
		{"empty domain", " ", OperationUpload, "Cache", "a", ErrInvalidDomain},
		{"no scheme", "control.example.net", OperationUpload, "Cache", "a", ErrInvalidDomain},
		{"ftp", "ftp://h", OperationUpload, "Cache", "a", ErrInvalidDomain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildLocationURL(tt.domain, tt.op, tt.folder, 0, tt.file)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
