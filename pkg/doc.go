// Package jose loads, verifies and decrypts JavaScript Object Signing and
// Encryption (JOSE) tokens.
//
// Input in any of the compact, flattened JSON or general JSON serializations
// is normalized by the loader package into one canonical structure, a
// *jws.General or a *jwe.General. The verification pipeline in package jws
// and the decryption pipeline in package jwe only ever see that structure.
//
// Related RFCs:
//   - RFC7515 https://datatracker.ietf.org/doc/html/rfc7515 JWS, JSON Web Signature
//   - RFC7516 https://datatracker.ietf.org/doc/html/rfc7516 JWE, JSON Web Encryption
//   - RFC7517 https://datatracker.ietf.org/doc/html/rfc7517 JWK, JSON Web Key
//   - RFC7518 https://datatracker.ietf.org/doc/html/rfc7518 JWA, JSON Web Algorithms
//   - RFC7638 https://datatracker.ietf.org/doc/html/rfc7638 JWK Thumbprint
//   - RFC8037 https://datatracker.ietf.org/doc/html/rfc8037 CFRG curves in JOSE
//
// Related Information:
//   - https://datatracker.ietf.org/wg/jose/charter/
package jose
