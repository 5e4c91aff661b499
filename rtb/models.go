package rtb

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"

	"rtb-client/internal/signer"
	"rtb-client/internal/transport"
)

// Outcome is the status delivered to every callback.
type Outcome = transport.Outcome

// Callback receives the raw outcome of a tracking report.
type Callback = transport.Callback

var (
	Success          = transport.Success
	FailedUnlinkSlot = transport.FailedUnlinkSlot
	InvalidSlot      = transport.InvalidSlot
	// Pending marks a batch slot that had not completed when the batch was delivered.
	Pending = Outcome{Code: 1006, Text: "no outcome before deadline"}
	// NullResult is delivered when the body decodes to no envelope at all.
	NullResult = Outcome{Code: int(HashCode("result == null")), Text: "result == null"}
)

// DecodeFailedCode is the code of the outcome delivered for an undecodable body. Its text
// carries the decoder error.
var DecodeFailedCode = int(HashCode("JsonSyntaxException"))

// HashCode is the 31-multiplier polynomial hash over UTF-16 code units, the convention
// the ad server and its analytics use to derive codes from status names.
func HashCode(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	return h
}

// Credentials identify the app and device. All fields are required.
type Credentials struct {
	AppID    string `validate:"required"`
	AppKey   string `validate:"required"`
	DeviceID string `validate:"required"`
}

func (c Credentials) signing() signer.Credentials {
	return signer.Credentials{AppID: c.AppID, AppKey: c.AppKey}
}

type SlotType int

const (
	SlotTypeBanner SlotType = iota + 1
	SlotTypeVideo
	SlotTypeNative
	SlotTypeSplash
)

func (t SlotType) String() string {
	switch t {
	case SlotTypeBanner:
		return "banner"
	case SlotTypeVideo:
		return "video"
	case SlotTypeNative:
		return "native"
	case SlotTypeSplash:
		return "splash"
	}
	return fmt.Sprintf("SlotType(%d)", int(t))
}

func ParseSlotType(s string) (SlotType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "banner":
		return SlotTypeBanner, nil
	case "video":
		return SlotTypeVideo, nil
	case "native":
		return SlotTypeNative, nil
	case "splash":
		return SlotTypeSplash, nil
	}
	return 0, fmt.Errorf("unknown slot type %q", s)
}

// Slot describes one ad placement request.
type Slot struct {
	ID       string   `validate:"required"`
	Quantity int      `validate:"min=1"`
	Type     SlotType `validate:"min=1"`
}

func (s Slot) String() string {
	return fmt.Sprintf("slot %s x%d (%s)", s.ID, s.Quantity, s.Type)
}

// SlotRequest is the JSON payload sent in the signed form body.
type SlotRequest struct {
	IP       string   `json:"ip"`
	Quantity int      `json:"quantity"`
	SlotID   string   `json:"pxbSlotId"`
	Type     SlotType `json:"type"`
	DeviceID string   `json:"unicode"`
}

// Envelope wraps every API response body.
type Envelope[T any] struct {
	Success bool       `json:"success"`
	Payload T          `json:"payload"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Creative is one ad as the server sent it. The client passes it through untouched;
// use Decode to read it into an application type.
type Creative json.RawMessage

func (c Creative) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	return c, nil
}

func (c *Creative) UnmarshalJSON(b []byte) error {
	*c = append((*c)[0:0], b...)
	return nil
}

func (c Creative) Decode(v any) error { return json.Unmarshal(c, v) }

// AdListener receives the outcome of a slot or batch request.
type AdListener func(o Outcome, ads []Creative)

// SlotResult is the per-slot diagnostic of a batch.
type SlotResult struct {
	Slot    *Slot
	Outcome Outcome
	Ads     int
	Done    bool
}

// BatchListener is an AdListener that also receives per-slot diagnostics.
type BatchListener func(o Outcome, ads []Creative, slots []SlotResult)
