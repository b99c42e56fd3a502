// Package pppos bridges a serial byte stream to a PPP network interface.
package pppos

// The Bridge owns the connection status and the single live PPP engine
// handle. Three activities run concurrently:
//
//   - the byte pump moves bytes received on the serial transport into the
//     engine, at most MaxBatch bytes per cycle;
//   - the engine, which writes frames back through the output callback and
//     reports link changes through the status callback;
//   - the watchdog, which tears down a lost link and starts a new attempt.
//
// Every status other than "no error" reported by the engine is folded into
// ConnectionLost. Recovery always goes through a full Disconnect before the
// next Connect.
