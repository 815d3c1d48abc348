package ws

import (
	"sync"
	"testing"
	"time"
)

func TestHubSubscribeAndPublish(t *testing.T) {
	hub := NewHub()
	client := NewClient(nil)

	hub.Subscribe("loan:loan-1", client)
	hub.Publish("loan:loan-1", []byte(`{"event":"loan_repaid"}`))

	select {
	case msg := <-client.out:
		if string(msg) != `{"event":"loan_repaid"}` {
			t.Fatalf("unexpected payload: %s", string(msg))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for message")
	}

	hub.UnsubscribeAll(client)
}

func TestHubPublishAfterUnsubscribe(t *testing.T) {
	hub := NewHub()
	client := NewClient(nil)

	hub.Subscribe("address:rBorrower", client)
	hub.UnsubscribeAll(client)
	hub.Publish("address:rBorrower", []byte(`{"event":"loan_defaulted"}`))

	select {
	case msg := <-client.out:
		t.Fatalf("unexpected delivery after unsubscribe: %s", string(msg))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubPublishRacesDisconnect(t *testing.T) {
	hub := NewHub()
	payload := []byte(`{"event":"loan_repaid"}`)

	for i := 0; i < 200; i++ {
		client := NewClient(nil)
		hub.Subscribe("loan:loan-1", client)
		hub.Subscribe("address:rBorrower", client)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				hub.Publish("loan:loan-1", payload)
				hub.Publish("address:rBorrower", payload)
			}
		}()
		go func() {
			defer wg.Done()
			hub.UnsubscribeAll(client)
			client.close()
		}()
		wg.Wait()
	}
}

func TestClientSendAfterClose(t *testing.T) {
	client := NewClient(nil)
	client.close()
	client.close()
	client.send([]byte(`{"event":"loan_repaid"}`))

	if _, ok := <-client.out; ok {
		t.Fatalf("unexpected delivery on closed client")
	}
}

func TestSubscriptionTopic(t *testing.T) {
	cases := []struct {
		name string
		msg  subscribeMessage
		want string
	}{
		{"loan channel", subscribeMessage{Channel: "loan", LoanID: "loan-1"}, "loan:loan-1"},
		{"address channel", subscribeMessage{Channel: "address", Address: "rBorrower"}, "address:rBorrower"},
		{"loan without id", subscribeMessage{Channel: "loan"}, ""},
		{"address without address", subscribeMessage{Channel: "address"}, ""},
		{"unknown channel", subscribeMessage{Channel: "pool"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := subscriptionTopic(tc.msg); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}
