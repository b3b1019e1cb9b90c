// Package codescanner scans barcodes and QR codes from a live camera stream.
//
// A Scanner runs one capture session at a time. Start requests a camera
// stream, samples the newest frame at a fixed interval, converts it to a
// bounded-resolution luma buffer and hands it to a Decoder. The first
// successful decode ends the session and releases the camera.
//
// # Quick Start
//
//	var cam codescanner.Camera = newCamera() // e.g. the GStreamer backend
//
//	host := codescanner.HostFuncs{
//	    Scanned: func(id string, o codescanner.Outcome) {
//	        fmt.Println(o.Text)
//	    },
//	}
//
//	scanner, err := codescanner.New(codescanner.DefaultConfig(), cam, host)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	go scanner.Run(ctx)
//	if err := scanner.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Lifecycle
//
//	Idle → Acquiring → Streaming → Closed
//	         │             │
//	         └── Close ────┴──→ Closed (tracks stopped, OnClosed once)
//
// Start is accepted from Idle or Closed only. Close is accepted in any
// phase; when no session is active it does nothing.
//
// # Concurrency
//
// All session state is owned by the goroutine running Run. Start, Close and
// ToggleFlashlight post commands to it and wait for the reply. Acquisition
// and decoding run off that goroutine and report back as messages; results
// belonging to a session that has since ended are discarded (a stream that
// arrives late is stopped). At most one decode is in flight; ticks that
// arrive while one is running are skipped.
//
// # Frame processing
//
//   - Frames larger than 800 px on either side are scaled down preserving
//     aspect ratio, and frames smaller than 50 px are scaled up
//   - Luma is (306R + 601G + 117B + 512) >> 10; fully transparent pixels are white
//   - Decoding uses gozxing (QR by default, other symbologies configurable)
//
// # Errors
//
// Errors reaching the Host are *Error values classified by ErrorKind.
// "No symbol found" is never reported; acquisition failures and decode
// failures end the session by default (see Config.ContinueOnDecodeError);
// torch failures leave it streaming.
package codescanner
