/*
Package wire implements fleetwork's framed transport (spec §4.1, component
C1): length-prefixed messages over TCP, with a selectable security variant
layered on top of the framing.

# Framing

Every message on the wire is:

	<ascii-decimal-length> "MLEN" <length bytes of payload>

The length prefix is restricted to ASCII '0'-'9' and bounded to at most
maxHeaderDigits digits before a frame is rejected, so a peer streaming a
malformed or malicious length indicator cannot hold a reader open forever.
Spec §9 notes the original implementation's length-prefix scanner is
off-by-one (it accepts byte 58, ':', via a half-open range that should have
excluded it); this package's scanner accepts only '0'-'9', per the REDESIGN
FLAG instruction to fix that in the reimplementation.

# Security variants

One Variant is chosen per process at startup (spec §4.1: "a process-wide
setting... once chosen, every new socket uses it"):

  - VariantPlain — no transformation.
  - VariantHMAC — SHA-256 HMAC appended to the payload; constant-time
    comparison on receive.
  - VariantAES — payload hashed (SHA-256), hash appended, then the whole
    thing encrypted with AES-CFB under a random 16-byte IV prepended to the
    ciphertext.
  - VariantAESHMAC — HMAC over the AES ciphertext, for authenticated
    encryption built from the two primitives above. Independent AES and
    HMAC subkeys are derived from one configured shared secret via HKDF
    (golang.org/x/crypto/hkdf) instead of reusing one raw key for both.
  - VariantTLS — mutual TLS; both peers present certificates, validated
    against a configured CA.

Conn wraps a net.Conn with the chosen variant's Encode/Decode transform
(TLS instead wraps the socket itself at Dial/Listen time and leaves the
payload transform as identity).
*/
package wire
