package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/model"
)

const detailPage = `<html><body>
<table class="datadisplaytable">
<tr><th class="ddlabel" scope="row">Data Structures &amp; Algorithms - 12345 - CS 1332 - A</th></tr>
<tr><td class="dddefault">
<table class="datadisplaytable">
<caption class="captiontext">Registration Availability</caption>
<tr><th class="ddheader">&nbsp;</th><th class="ddheader">Capacity</th><th class="ddheader">Actual</th><th class="ddheader">Remaining</th></tr>
<tr><th class="ddlabel">Seats</th><td class="dddefault">%d</td><td class="dddefault">%d</td><td class="dddefault">%d</td></tr>
<tr><th class="ddlabel">Waitlist Seats</th><td class="dddefault">%d</td><td class="dddefault">%d</td><td class="dddefault">%d</td></tr>
</table>
</td></tr>
</table>
</body></html>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{
		URLTemplate: srv.URL + "/detail?term_in={term}&crn_in={crn}",
		Timeout:     time.Second,
	})
}

func TestResolve(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprintf(w, detailPage, 50, 50, 0, 10, 3, 7)
	})

	info, err := c.Resolve(context.Background(), "12345", "202508")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if gotQuery != "term_in=202508&crn_in=12345" {
		t.Errorf("query = %q", gotQuery)
	}
	want := model.CourseInfo{
		CRN:     "12345",
		Term:    "202508",
		Name:    "Data Structures & Algorithms",
		Code:    "CS 1332",
		Section: "A",
		URL:     c.URL("12345", "202508"),
	}
	if info != want {
		t.Fatalf("info = %+v, want %+v", info, want)
	}
}

func TestResolveNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><span class="errortext">No classes were found</span></body></html>`)
	})
	_, err := c.Resolve(context.Background(), "99999", "202508")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveBadHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<table><tr><th class="ddlabel">Just A Title - 12345</th></tr></table>`)
	})
	_, err := c.Resolve(context.Background(), "12345", "202508")
	if !errors.Is(err, ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}

func TestParseHeaderHyphenatedName(t *testing.T) {
	name, code, section, err := parseHeader("Special Topics - Machine Learning - 23456 - CS 4803 - MLZ")
	if err != nil {
		t.Fatal(err)
	}
	if name != "Special Topics - Machine Learning" || code != "CS 4803" || section != "MLZ" {
		t.Fatalf("got %q %q %q", name, code, section)
	}
}

func TestRefresh(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, detailPage, 50, 52, -2, 10, 3, 7)
	})
	status, err := c.Refresh(context.Background(), model.CourseInfo{CRN: "12345", URL: c.URL("12345", "202508")})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	want := model.Status{Seats: 50, SeatsTaken: 52, SeatsVacant: -2, Waitlist: 10, WaitlistTaken: 3, WaitlistVacant: 7}
	if status != want {
		t.Fatalf("status = %+v, want %+v", status, want)
	}
}

func TestRefreshErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "table missing",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `<table><caption>Something Else</caption></table>`)
			},
			want: ErrNotFound,
		},
		{
			name: "too few cells",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `<table><caption>Registration Availability</caption>
<tr><td class="dddefault">1</td><td class="dddefault">2</td></tr></table>`)
			},
			want: ErrParse,
		},
		{
			name: "non numeric cell",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `<table><caption>Registration Availability</caption><tr>
<td class="dddefault">1</td><td class="dddefault">x</td><td class="dddefault">3</td>
<td class="dddefault">4</td><td class="dddefault">5</td><td class="dddefault">6</td></tr></table>`)
			},
			want: ErrParse,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			want: ErrTransport,
		},
		{
			name: "http not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			want: ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.Refresh(context.Background(), model.CourseInfo{CRN: "12345", URL: c.URL("12345", "202508")})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRefreshTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := New(Options{URLTemplate: srv.URL + "/?crn={crn}", Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := c.Refresh(context.Background(), model.CourseInfo{CRN: "12345", URL: c.URL("12345", "")})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}
}
