package sketricgen_test

import (
	"context"
	"fmt"

	sketricgen "github.com/sketricsolutions/sketricgen-sdk"
)

func ExampleClient_RunWorkflow() {
	ctx := context.Background()

	// You can also provide a key directly with `sketricgen.NewClient(sketricgen.WithAPIKey("sk_..."))`
	client, err := sketricgen.NewClient(sketricgen.WithAPIKeyFromEnv())
	if err != nil {
		// handle error
	}

	response, err := client.RunWorkflow(ctx, &sketricgen.WorkflowRequest{
		AgentID:   "agent-123",
		UserInput: "Summarize this document for me",
		FilePaths: []string{"/path/to/document.pdf"},
	})
	if err != nil {
		// handle error
	}
	fmt.Println("response: ", response.Response)
}

func ExampleClient_StreamWorkflow() {
	ctx := context.Background()

	client, err := sketricgen.NewClient(sketricgen.WithAPIKeyFromEnv())
	if err != nil {
		// handle error
	}

	eventChan, errChan := client.StreamWorkflow(ctx, &sketricgen.WorkflowRequest{
		AgentID:   "agent-123",
		UserInput: "Tell me a story",
	})

	for event := range eventChan {
		fmt.Print(event.Data)
	}
	if err := <-errChan; err != nil {
		// handle error
	}
}

func ExampleClient_OpenWorkflowStream() {
	ctx := context.Background()

	client, err := sketricgen.NewClient(sketricgen.WithAPIKeyFromEnv())
	if err != nil {
		// handle error
	}

	stream, err := client.OpenWorkflowStream(ctx, &sketricgen.WorkflowRequest{
		AgentID:   "agent-123",
		UserInput: "Tell me a story",
	})
	if err != nil {
		// handle error
	}
	defer stream.Close()

	for {
		event, err := stream.Next()
		if err != nil {
			// io.EOF means the stream finished
			break
		}
		fmt.Print(event.Data)
	}
}
