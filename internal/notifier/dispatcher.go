package notifier

import (
	"github.com/nimasrn/payment-gateway/internal/model"
	"github.com/nimasrn/payment-gateway/pkg/logger"
	"github.com/nimasrn/payment-gateway/pkg/prom"
	"github.com/nimasrn/payment-gateway/pkg/worker"
)

type eventKind int

const (
	eventPayment eventKind = iota
	eventRefund
)

type job struct {
	kind eventKind
	txn  *model.Transaction
}

// Dispatcher delivers notifications asynchronously so webhook latency
// never sits on the payment path. Enqueue never blocks: when the
// buffer is full the event is dropped and counted.
type Dispatcher struct {
	client  *Client
	manager *worker.WorkerManager
}

func NewDispatcher(client *Client, bufferSize, workers int) *Dispatcher {
	d := &Dispatcher{
		client:  client,
		manager: worker.NewWorkerManager(bufferSize, workers, nil),
	}
	d.manager.SetWorker(d.deliver)
	return d
}

// Start runs the delivery workers and blocks until Stop is called.
func (d *Dispatcher) Start() error {
	return d.manager.Start()
}

func (d *Dispatcher) Stop() {
	d.manager.Exit()
}

// DispatchPayment schedules a payment outcome notification.
func (d *Dispatcher) DispatchPayment(txn *model.Transaction) {
	d.enqueue(job{kind: eventPayment, txn: txn})
}

// DispatchRefund schedules a refund notification.
func (d *Dispatcher) DispatchRefund(txn *model.Transaction) {
	d.enqueue(job{kind: eventRefund, txn: txn})
}

func (d *Dispatcher) enqueue(j job) {
	if !d.manager.TryEnqueue(j) {
		prom.IncNotifierFailed()
		logger.Warn("Notification buffer full, event dropped",
			"order_id", j.txn.OrderID,
			"status", j.txn.PaymentStatus)
	}
}

func (d *Dispatcher) deliver(workerIndex int, v interface{}) {
	j, ok := v.(job)
	if !ok {
		return
	}

	var err error
	switch j.kind {
	case eventRefund:
		err = d.client.NotifyRefund(j.txn)
	default:
		err = d.client.NotifyPayment(j.txn)
	}

	if err != nil {
		prom.IncNotifierFailed()
		logger.Warn("Admin notification failed",
			"order_id", j.txn.OrderID,
			"status", j.txn.PaymentStatus,
			"error", err)
		return
	}

	logger.Debug("Admin notification delivered",
		"order_id", j.txn.OrderID,
		"status", j.txn.PaymentStatus)
}
