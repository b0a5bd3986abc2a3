package logfields

import (
	"errors"
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"Env", KeyEnv, "dev", Env("dev")},
		{"Domain", KeyDomain, "pricing", Domain("pricing")},
		{"ConfigKey", KeyConfigKey, "default", ConfigKey("default")},
		{"Branch", KeyBranch, "main", Branch("main")},
		{"Commit", KeyCommit, "abc1234", Commit("abc1234")},
		{"ChangeID", KeyChangeID, "cr1", ChangeID("cr1")},
		{"PromotionID", KeyPromotionID, "pr1", PromotionID("pr1")},
		{"Actor", KeyActor, "alice", Actor("alice")},
		{"Action", KeyAction, "merge", Action("merge")},
		{"Operation", KeyOperation, "create", Operation("create")},
		{"Status", KeyStatus, "approved", Status("approved")},
		{"Method", KeyMethod, "GET", Method("GET")},
		{"Path", KeyPath, "/drift", Path("/drift")},
		{"RemoteAddr", KeyRemoteAddr, "1.2.3.4", RemoteAddr("1.2.3.4")},
		{"UserAgent", KeyUserAgent, "ua", UserAgent("ua")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

// TestNumericHelpers verifies keys for numeric helpers.
func TestNumericHelpers(t *testing.T) {
	if v := HTTPStatus(200); v.Key != KeyHTTPStatus {
		t.Fatalf("HTTPStatus key mismatch: %s", v.Key)
	}
	if v := DurationMS(12.5); v.Key != KeyDurationMS {
		t.Fatalf("DurationMS key mismatch: %s", v.Key)
	}
}

// TestErrorHelper ensures Error() handles nil and non-nil errors predictably.
func TestErrorHelper(t *testing.T) {
	attr := Error(nil)
	if attr.Key != KeyError {
		t.Fatalf("Error key mismatch: %s", attr.Key)
	}
	if attr.Value.String() != "" {
		t.Fatalf("expected empty error string, got %s", attr.Value.String())
	}
	attr = Error(errors.New("boom"))
	if attr.Value.String() != "boom" {
		t.Fatalf("expected 'boom', got %s", attr.Value.String())
	}
}
