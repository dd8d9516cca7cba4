package notify

import "testing"

func TestCodeForEventKnownKinds(t *testing.T) {
	cases := []struct {
		kind string
		want ErrorCode
	}{
		{"FILE_VALIDATION_FAILURE", ErrorCodeFileValidation},
		{"DOC_SIGNATURE_FAILURE", ErrorCodeSignatureVerification},
		{"INVALID_ENVELOPE_SCHEMA", ErrorCodeMetadataInvalid},
		{"DOC_FAILURE", ErrorCodeDocumentFailure},
	}
	for _, c := range cases {
		if got := CodeForEvent(c.kind); got != c.want {
			t.Errorf("CodeForEvent(%s) = %s, want %s", c.kind, got, c.want)
		}
	}
}

func TestCodeForEventUnknownKindFallsBackToDocumentFailure(t *testing.T) {
	if got := CodeForEvent("SOMETHING_UNMAPPED"); got != ErrorCodeDocumentFailure {
		t.Errorf("CodeForEvent(unmapped) = %s, want %s", got, ErrorCodeDocumentFailure)
	}
}
