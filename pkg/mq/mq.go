package mq

import (
	"time"

	"github.com/nats-io/nats.go"
)

// 预留消息队列接口；默认 Noop，配置 nats_url 时走 NATS
type Publisher interface {
	Publish(topic string, payload []byte) error
	Close() error
}

type Noop struct{}

func (Noop) Publish(topic string, payload []byte) error { return nil }
func (Noop) Close() error                               { return nil }

type NATS struct {
	nc *nats.Conn
}

func NewNATS(url string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("errata-harvester"),
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NATS{nc: nc}, nil
}

func (p *NATS) Publish(topic string, payload []byte) error {
	return p.nc.Publish(topic, payload)
}

func (p *NATS) Close() error {
	return p.nc.Drain()
}
