// Package discovery implements a best-effort UDP multicast supplement to
// the static worker configuration spec §1 assumes ("a fixed pool of
// worker processes"). It never replaces pkg/config's worker list — a
// worker found this way still needs the master to accept it the way any
// statically configured worker would — it only shortens the operational
// loop of discovering candidate addresses on a LAN.
package discovery
