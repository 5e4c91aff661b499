// Package signer builds the signed request URLs understood by the ad endpoint.
//
// The signature is the MD5 hex digest of an ordered key=value string. MD5 here is a
// content-integrity check agreed with the server, not an authentication-grade MAC:
// anyone holding the app key can forge requests, and the digest offers no protection
// beyond detecting accidental tampering.
package signer

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

// PayloadField is the form field carrying the JSON request payload.
const PayloadField = "payload"

// Credentials identify the calling application.
type Credentials struct {
	AppID  string
	AppKey string
}

// Param is one key=value pair of an ordered query.
type Param struct {
	Key   string
	Value string
}

// Query is an ordered parameter list. Order matters for signing, so url.Values is not used.
type Query []Param

// Raw joins the params as key=value&... without escaping.
func (q Query) Raw() string {
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// Encode is Raw with query-escaped values.
func (q Query) Encode() string {
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// URL appends the encoded query to base.
func (q Query) URL(base string) string {
	return base + "?" + q.Encode()
}

// Request is a fully signed ad request.
type Request struct {
	URL  string
	Form map[string]string
}

func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Sign returns the signature for payload. nonce doubles as sequence and timestamp.
func Sign(c Credentials, payload string, nonce int64, deviceID, version string) string {
	n := strconv.FormatInt(nonce, 10)
	return sign(c, payload, n, n, deviceID, version)
}

// Verify recomputes the signature from the values a server received.
func Verify(c Credentials, payload, sequence, timestamp, deviceID, version, signature string) bool {
	return strings.EqualFold(sign(c, payload, sequence, timestamp, deviceID, version), signature)
}

func sign(c Credentials, payload, sequence, timestamp, deviceID, version string) string {
	q := Query{
		{"appid", c.AppID},
		{"appkey", c.AppKey},
		{"payload", payload},
		{"sequence", sequence},
		{"timestamp", timestamp},
		{"uuid", deviceID},
		{"version", version},
	}
	return MD5Hex(q.Raw())
}

// BuildURL embeds everything but the app key and payload into the request URL.
func BuildURL(base string, c Credentials, nonce int64, deviceID, version, signature string) string {
	n := strconv.FormatInt(nonce, 10)
	return Query{
		{"appid", c.AppID},
		{"sequence", n},
		{"timestamp", n},
		{"uuid", deviceID},
		{"version", version},
		{"sign", signature},
	}.URL(base)
}

// NewRequest signs payload and returns the URL plus form body.
func NewRequest(base string, c Credentials, payload string, nonce int64, deviceID, version string) Request {
	s := Sign(c, payload, nonce, deviceID, version)
	return Request{
		URL:  BuildURL(base, c, nonce, deviceID, version, s),
		Form: map[string]string{PayloadField: payload},
	}
}
