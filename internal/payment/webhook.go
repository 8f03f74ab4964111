package payment

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Webhook event types the order engine reacts to. Anything else is
// acknowledged and dropped.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// Event is one gateway webhook delivery.
type Event struct {
	ID              string
	Type            string
	ProviderOrderID string
	PaymentID       string
}

// ParseEvent extracts the event fields from a verified webhook body without
// binding the whole payload to a struct; the gateway attaches plenty of
// entity data this service never reads.
//
// Expected shape:
//
//	{
//	  "id": "evt_...",
//	  "event": "payment.captured",
//	  "payload": {"payment": {"id": "paym_...", "order_id": "pay_..."}}
//	}
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			ev.ID = v
			return err
		case "event":
			v, err := d.Str()
			ev.Type = v
			return err
		case "payload":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "payment" {
					return d.Skip()
				}
				return d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "id":
						v, err := d.Str()
						ev.PaymentID = v
						return err
					case "order_id":
						v, err := d.Str()
						ev.ProviderOrderID = v
						return err
					default:
						return d.Skip()
					}
				})
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode webhook body")
	}

	if ev.Type == "" {
		return nil, errors.New("webhook body missing event type")
	}
	return &ev, nil
}
