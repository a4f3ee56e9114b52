package rbac

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
)

func TestCheckerRoles(t *testing.T) {
	c := NewChecker(nil)
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"Student", "attempt:create", true},
		{"Student", "exam:create", false},
		{"Teacher", "exam:create", true},
		{"Teacher", "attempt:view-all", true},
		{"Teacher", "attempt:submit", false},
		{"", "exam:view", false},
		{"Ghost", "exam:view", false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestPrefixGrant(t *testing.T) {
	c := NewChecker(map[string][]string{"ops": {"attempt:*"}})
	if !c.Has("ops", "attempt:view-all") || c.Has("ops", "exam:view") {
		t.Fatalf("prefix grant misapplied")
	}
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Require("exam:create")(ok)

	for role, want := range map[string]int{"Teacher": http.StatusNoContent, "Student": http.StatusForbidden, "": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodPost, "/exams", nil)
		req = req.WithContext(WithRole(req.Context(), role))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Errorf("role %q: status %d, want %d", role, rr.Code, want)
		}
	}
}

func TestPermissionNamesShareOneStyle(t *testing.T) {
	style := regexp.MustCompile(`^[a-z]+:[a-z]+(-[a-z]+)*$`)
	for role, perms := range RolePermissions {
		for _, p := range perms {
			if !style.MatchString(p) {
				t.Errorf("%s: permission %q is not resource:action-with-dashes", role, p)
			}
		}
	}
	if !NewChecker(nil).Has("Teacher", "exam:delete-own") {
		t.Fatalf("teacher lost exam:delete-own")
	}
}
