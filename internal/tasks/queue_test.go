package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ledgerly/einvoice/internal/invoicing"
	"ledgerly/einvoice/internal/services"
	"ledgerly/einvoice/internal/tasks"
)

var _ services.ITaskQueue = (*tasks.Queue)(nil)

func optionValues(opts []asynq.Option) map[asynq.OptionType]interface{} {
	values := map[asynq.OptionType]interface{}{}
	for _, o := range opts {
		values[o.Type()] = o.Value()
	}
	return values
}

func TestQueue_EnqueueSubmitInvoice(t *testing.T) {
	client := new(MockAsynqClient)
	var task *asynq.Task
	var opts []asynq.Option
	client.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			task = args.Get(1).(*asynq.Task)
			opts = args.Get(2).([]asynq.Option)
		}).
		Return(&asynq.TaskInfo{ID: "submit:sub-1", Queue: tasks.QueueCritical}, nil)

	require.NoError(t, tasks.NewQueue(client, 5).EnqueueSubmitInvoice(context.Background(), "sub-1"))

	assert.Equal(t, tasks.TypeSubmitInvoice, task.Type())
	assert.JSONEq(t, `{"submission_id":"sub-1"}`, string(task.Payload()))
	values := optionValues(opts)
	assert.Equal(t, tasks.QueueCritical, values[asynq.QueueOpt])
	assert.Equal(t, 5, values[asynq.MaxRetryOpt])
	assert.Equal(t, "submit:sub-1", values[asynq.TaskIDOpt])
}

func TestQueue_EnqueueRenderPDF(t *testing.T) {
	client := new(MockAsynqClient)
	var task *asynq.Task
	client.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { task = args.Get(1).(*asynq.Task) }).
		Return(&asynq.TaskInfo{ID: "t", Queue: tasks.QueueDefault}, nil)
	q := tasks.NewQueue(client, 3)

	require.NoError(t, q.EnqueueRenderPDF(context.Background(), invoicing.BookContext{BookID: "book-1"}, "inv-1", "a@b.test"))
	var payload tasks.RenderPDFPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, tasks.RenderPDFPayload{BookID: "book-1", InvoiceID: "inv-1", EmailTo: "a@b.test"}, payload)

	var perr *invoicing.PreconditionError
	assert.True(t, errors.As(q.EnqueueRenderPDF(context.Background(), invoicing.BookContext{}, "inv-1", ""), &perr))
	client.AssertNumberOfCalls(t, "EnqueueContext", 1)
}

func TestQueue_EnqueueError(t *testing.T) {
	client := new(MockAsynqClient)
	client.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))

	err := tasks.NewQueue(client, 3).EnqueueEmail(context.Background(), tasks.EmailTaskPayload{To: "a@b.test"})
	assert.ErrorContains(t, err, "redis down")
}
