package logging

import (
	"encoding/hex"
	"sync"

	"github.com/rs/zerolog"

	"github.com/NowakAdmin/DeviceHub/internal/center"
)

// Sink writes center events to the log. Messages and status changes are
// always logged; received and transmitted data only for devices with the
// matching log flag.
type Sink struct {
	logger zerolog.Logger
	center *center.Center
	sub    *center.Subscription
	wg     sync.WaitGroup
}

func NewSink(c *center.Center, logger zerolog.Logger) *Sink {
	s := &Sink{
		logger: logger.With().Str("component", "devices").Logger(),
		center: c,
		sub:    c.Subscribe(),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Sink) run() {
	defer s.wg.Done()
	for ev := range s.sub.C() {
		s.Log(ev)
	}
}

// Log writes one event.
func (s *Sink) Log(ev center.Event) {
	switch ev.Kind {
	case center.KindMessage:
		e := s.logger.Info()
		switch ev.Severity {
		case "error":
			e = s.logger.Error()
		case "success":
			e = s.logger.Info().Bool("success", true)
		}
		if ev.Cause != "" {
			e = e.Str("cause", ev.Cause)
		}
		e.Str("device", ev.Device).Str("severity", ev.Severity).Msg(ev.Message)

	case center.KindStatus:
		s.logger.Debug().Str("device", ev.Device).Bool("connected", ev.Connected).Msg("status")

	case center.KindReceived:
		if s.flags(ev.Device, true) {
			s.data("rx", ev)
		}

	case center.KindTransmitted:
		if s.flags(ev.Device, false) {
			s.data("tx", ev)
		}

	case center.KindWeight:
		if ev.Weight != nil {
			s.logger.Info().Str("device", ev.Device).
				Float64("weight", ev.Weight.Weight).
				Float64("tare", ev.Weight.TareWeight).
				Str("unit", ev.Weight.WeightUnit.String()).
				Msg("weight")
		}

	case center.KindBarcode:
		if ev.Barcode != nil {
			s.logger.Info().Str("device", ev.Device).Str("barcode", ev.Barcode.Barcode).Msg("barcode")
		}
	}
}

func (s *Sink) data(direction string, ev center.Event) {
	s.logger.Info().
		Str("device", ev.Device).
		Str("dir", direction).
		Str("text", ev.Text).
		Str("hex", hex.EncodeToString(ev.Bytes)).
		Msg(direction)
}

func (s *Sink) flags(name string, rx bool) bool {
	info, ok := s.center.Device(name)
	if !ok {
		return false
	}
	if rx {
		return info.Device.RxLogEnable
	}
	return info.Device.TxLogEnable
}

// Close stops the sink once pending events are written.
func (s *Sink) Close() {
	s.sub.Unsubscribe()
	s.wg.Wait()
}
