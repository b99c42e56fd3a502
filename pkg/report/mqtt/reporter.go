// Package mqtt reports the PPP link status to an MQTT broker and accepts
// remote commands.
package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/pppos/pkg/pppos"
)

// Topics under <prefix><id>/.
const (
	StatusTopic  = "status"
	CommandTopic = "cmd"
)

// Offline is the status published as last will and on shutdown.
const Offline = "OFFLINE"

// Commands accepted on the command topic.
const (
	CmdReconnect = "reconnect"
	CmdStatus    = "status"
)

// Source is what the Reporter reports.
type Source interface {
	Stats() pppos.Stats
	RequestReconnect()
}

// StatusReport is the retained status payload.
type StatusReport struct {
	Status    string    `json:"status"`
	Previous  string    `json:"previous,omitempty"`
	Netif     string    `json:"netif,omitempty"`
	Addr      string    `json:"addr,omitempty"`
	Gateway   string    `json:"gateway,omitempty"`
	DNS       string    `json:"dns,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Connects  uint64    `json:"connects"`
	RxBytes   uint64    `json:"rx_bytes"`
	TxBytes   uint64    `json:"tx_bytes"`
	Time      time.Time `json:"time"`
}

// NewStatusReport builds a StatusReport from the bridge stats.
func NewStatusReport(previous *pppos.ConnectionStatus, stats pppos.Stats, now time.Time) StatusReport {
	r := StatusReport{
		Status:   stats.Status.String(),
		Netif:    stats.Netif.Name,
		Connects: stats.Connects,
		RxBytes:  stats.RxBytes,
		TxBytes:  stats.TxBytes,
		Time:     now.UTC(),
	}
	if previous != nil {
		r.Previous = previous.String()
	}
	if pppos.IsSet(stats.Netif.Addr) {
		r.Addr = stats.Netif.Addr.String()
	}
	if pppos.IsSet(stats.Netif.Gateway) {
		r.Gateway = stats.Netif.Gateway.String()
	}
	if pppos.IsSet(stats.Netif.DNS) {
		r.DNS = stats.Netif.DNS.String()
	}
	if stats.LastError != pppos.ErrNone {
		r.LastError = stats.LastError.String()
	}
	return r
}

// Reporter publishes status changes of a bridge.
type Reporter struct {
	Queue  *Queue
	ID     string
	Source Source

	lock     sync.Mutex
	previous *pppos.ConnectionStatus
}

// NewReporter creates a Reporter connecting to brokerURL.
func NewReporter(brokerURL, id string, source Source) (*Reporter, error) {
	opts, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	offline, _ := json.Marshal(&StatusReport{Status: Offline})
	opts.SetBinaryWill(opts.TopicPrefix+id+"/"+StatusTopic, offline, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("pppos:" + id)
	}
	r := &Reporter{
		Queue:  NewQueue(opts),
		ID:     id,
		Source: source,
	}
	r.Queue.OnConnect = func(*Queue) { r.Publish() }
	r.Queue.Sub(r.topic(CommandTopic), r.HandleCommand)
	return r, nil
}

// Name implements framework.Named.
func (r *Reporter) Name() string {
	return "mqtt-reporter"
}

// StatusChanged implements pppos.StatusNotifier.
func (r *Reporter) StatusChanged(from, to pppos.ConnectionStatus) {
	r.lock.Lock()
	r.previous = &from
	r.lock.Unlock()
	r.Publish()
}

// Publish publishes the current status.
func (r *Reporter) Publish() {
	if !r.Queue.Client.IsConnected() {
		return
	}
	payload, err := r.Payload(time.Now())
	if err != nil {
		glog.Errorf("mqtt: encode status error: %v", err)
		return
	}
	r.Queue.PubWith(r.topic(StatusTopic), payload, 1, true)
}

// Payload encodes the current status.
func (r *Reporter) Payload(now time.Time) ([]byte, error) {
	r.lock.Lock()
	previous := r.previous
	r.lock.Unlock()
	report := NewStatusReport(previous, r.Source.Stats(), now)
	return json.Marshal(&report)
}

// HandleCommand handles a payload received on the command topic.
func (r *Reporter) HandleCommand(topic string, payload []byte) {
	cmd := strings.ToLower(strings.TrimSpace(string(payload)))
	switch cmd {
	case CmdReconnect:
		glog.Infof("mqtt: reconnect requested remotely")
		r.Source.RequestReconnect()
	case CmdStatus:
		r.Publish()
	default:
		glog.Warningf("mqtt: unknown command %q on %s", cmd, topic)
	}
}

// Run implements framework.Runnable.
func (r *Reporter) Run(ctx context.Context) error {
	token := r.Queue.Connect()
	go func() {
		if token.Wait(); token.Error() != nil {
			glog.Warningf("mqtt: connect error: %v", token.Error())
		}
	}()
	<-ctx.Done()
	if r.Queue.Client.IsConnected() {
		offline, _ := json.Marshal(&StatusReport{Status: Offline, Time: time.Now().UTC()})
		r.Queue.PubWith(r.topic(StatusTopic), offline, 1, true).WaitTimeout(time.Second)
	}
	r.Queue.Close()
	return nil
}

func (r *Reporter) topic(name string) string {
	return r.ID + "/" + name
}
