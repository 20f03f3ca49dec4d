package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-peerkit/pkg/types"
)

const namespace = "peerkit"

// 标签取值
const (
	InvitationSent     = "sent"
	InvitationAccepted = "accepted"
	InvitationRejected = "rejected"

	EnvelopeSent      = "sent"
	EnvelopeReceived  = "received"
	EnvelopeMalformed = "malformed"

	ResourceReceived = "received"
	ResourceFailed   = "failed"

	DirectionIn  = "in"
	DirectionOut = "out"
)

// Metrics 核心指标集合
type Metrics struct {
	transitions    *prometheus.CounterVec
	invitations    *prometheus.CounterVec
	envelopes      *prometheus.CounterVec
	sendFailures   prometheus.Counter
	resources      *prometheus.CounterVec
	connectedPeers prometheus.Gauge
	bytes          *prometheus.CounterVec

	traffic *Traffic
}

// New 创建指标集合并注册到 reg，reg 为 nil 时不注册
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Number of session state transitions.",
		}, []string{"from", "to"}),
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitations_total",
			Help:      "Number of connection invitations by result.",
		}, []string{"result"}),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_total",
			Help:      "Number of envelopes by direction.",
		}, []string{"direction"}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Number of transport sends that failed.",
		}),
		resources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resources_total",
			Help:      "Number of inbound resource transfers by result.",
		}, []string{"result"}),
		connectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_peers",
			Help:      "Number of peers reported connected by the transport session.",
		}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_bytes_total",
			Help:      "Bytes of session data by direction, resources excluded.",
		}, []string{"direction"}),
		traffic: NewTraffic(nil),
	}

	if reg != nil {
		m.transitions = register(reg, m.transitions)
		m.invitations = register(reg, m.invitations)
		m.envelopes = register(reg, m.envelopes)
		m.sendFailures = register(reg, m.sendFailures)
		m.resources = register(reg, m.resources)
		m.connectedPeers = register(reg, m.connectedPeers)
		m.bytes = register(reg, m.bytes)
	}
	return m
}

// register 注册收集器，已注册时返回已存在的那个
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

// Transition 记录一次状态迁移
func (m *Metrics) Transition(from, to types.SessionState) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

// Invitation 记录一次邀请结果
func (m *Metrics) Invitation(result string) {
	if m == nil {
		return
	}
	m.invitations.WithLabelValues(result).Inc()
}

// Envelope 记录一个信封
func (m *Metrics) Envelope(direction string) {
	if m == nil {
		return
	}
	m.envelopes.WithLabelValues(direction).Inc()
}

// SendFailure 记录一次发送失败
func (m *Metrics) SendFailure() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

// Resource 记录一次资源接收结果
func (m *Metrics) Resource(result string) {
	if m == nil {
		return
	}
	m.resources.WithLabelValues(result).Inc()
}

// SetConnectedPeers 更新已连接节点数
func (m *Metrics) SetConnectedPeers(n int) {
	if m == nil {
		return
	}
	m.connectedPeers.Set(float64(n))
}

// DataSent 记录发往 peer 的数据
func (m *Metrics) DataSent(peer types.PeerID, n int) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues(DirectionOut).Add(float64(n))
	m.traffic.LogSent(peer, n)
}

// DataReceived 记录来自 peer 的数据
func (m *Metrics) DataReceived(peer types.PeerID, n int) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues(DirectionIn).Add(float64(n))
	m.traffic.LogReceived(peer, n)
}

// Traffic 返回流量计数器，nil 接收者返回 nil
func (m *Metrics) Traffic() *Traffic {
	if m == nil {
		return nil
	}
	return m.traffic
}
