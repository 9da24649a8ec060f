package bridge

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/ipclog"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/utils"
)

// codec is shared by every envelope encode/decode. Map keys are sorted so
// logged and posted envelopes are byte-stable.
var codec = sonic.Config{
	SortMapKeys:    true,
	EscapeHTML:     true,
	CopyString:     true,
	ValidateString: true,
}.Froze()

var sizeValidator = utils.DefaultJSONValidator()

// Encode serializes an envelope.
func Encode(e Envelope) ([]byte, error) {
	return codec.Marshal(e)
}

// Decode parses an inbound message from extID. Anything that is not a
// well-formed outbound envelope from that extension is a ProtocolViolation.
func Decode(extID string, data []byte) (Envelope, error) {
	var e Envelope
	if err := sizeValidator.ValidateJSON(data); err != nil {
		return e, faults.New(faults.ProtocolViolation, extID, "decode", err)
	}
	if err := codec.Unmarshal(data, &e); err != nil {
		return e, faults.New(faults.ProtocolViolation, extID, "decode", err)
	}
	if err := checkInbound(extID, e); err != nil {
		return e, faults.New(faults.ProtocolViolation, extID, "decode", err)
	}
	return e, nil
}

func checkInbound(extID string, e Envelope) error {
	switch {
	case e.Event == "":
		return errors.New("missing event")
	case e.Direction != ipclog.Out:
		return fmt.Errorf("direction %q, want %q", e.Direction, ipclog.Out)
	case e.ExtID != extID:
		return fmt.Errorf("envelope claims extension %q", e.ExtID)
	case len(e.ID) > utils.MaxIDLength:
		return errors.New("call id too long")
	}
	if args := bytes.TrimSpace(e.Args); len(args) > 0 && args[0] != '[' && string(args) != "null" {
		return errors.New("args must be an array")
	}
	return nil
}
