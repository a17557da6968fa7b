// Package base64 provides base64url encoding and decoding functions
// as defined in RFC 4648 Section 5, for use in JWS (RFC 7515) and
// JWE (RFC 7516) serializations.
//
// The key difference from standard base64 encoding is:
//   - Uses URL-safe characters (- and _ instead of + and /)
//   - Omits padding characters (=) in the encoded output
//   - Accepts empty input, which compact serializations use for absent segments
//
// http://www.rfc-editor.org/rfc/rfc4648#section-5
package base64
