package registry

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
)

// sniff checks that a payload's content matches the sandbox kind it will be
// loaded into and returns the detected media type. Iframe payloads must be
// HTML documents; worker payloads must be plain text that is not HTML.
func sniff(kind manifest.Kind, body []byte) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("empty payload")
	}

	mt := mimetype.Detect(body)
	isHTML := isA(mt, "text/html")

	switch kind {
	case manifest.KindIframe:
		if !isHTML {
			return mt.String(), fmt.Errorf("iframe payload is %s, want text/html", mt.String())
		}
	case manifest.KindWorker:
		if isHTML || !isA(mt, "text/plain") {
			return mt.String(), fmt.Errorf("worker payload is %s, want script text", mt.String())
		}
	default:
		return mt.String(), fmt.Errorf("unknown kind %q", kind)
	}
	return mt.String(), nil
}

func isA(mt *mimetype.MIME, mime string) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(mime) {
			return true
		}
	}
	return false
}
