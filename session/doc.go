// Package session aggregates a frame source, a background, live keying
// settings and a compositor into a running composite session.
//
// A Manager hands out at most one Session per capture device. Each Session
// owns a scheduler that pulls the newest frame, composites it with a
// snapshot of the settings taken at tick start, hands the result to the
// Presenter and, while recording, to the Recorder.
//
//	mgr := session.NewManager(session.Deps{Capture: gstcapture.Opener{}})
//	s, err := mgr.Open(ctx, session.Config{Device: "/dev/video0"})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	s.Start()
package session
