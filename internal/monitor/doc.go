// Package monitor implements the live instance dashboard behind
// "instsync watch".
//
// The dashboard is a Bubble Tea program over a provider.Consumer. It never
// owns data: every render reads the provider's snapshot, and a Bridge turns
// provider updates into Bubble Tea messages so the screen redraws as soon as
// a status event lands.
//
// Layout:
//
//	instsync  ● live | 12 instances | 10 running | 2 error | updated 3s ago
//
//	  NAME        ADDRESS          TYPE      STATUS   MON  CPU         MEM         CHECKED
//	▸ orders-db   10.0.0.4:5432    postgres  running  on   ▰▰▰▱▱▱ 48%  ▰▰▱▱▱▱ 31%  4 seconds ago
//	  cache-1     10.0.0.9:6379    redis     error    off  ▱▱▱▱▱▱  0%  ▱▱▱▱▱▱  0%  2 minutes ago
//
//	✓ refreshed orders-db
//	↑/k up • ↓/j down • r refresh • f refresh all • m monitor • c reconnect • ? more • q quit
//
// Commands (refresh, toggle, reconnect) are issued through the Consumer and
// their Results are awaited off the update loop; the outcome is shown on the
// flash line.
package monitor
