package batchmux_test

import (
	"context"
	"fmt"
	"strings"

	"batchmux"
)

// greetHandler serves whole batches of greetTasks in one call.
type greetHandler struct{}

func (greetHandler) ExecuteBatch(_ context.Context, _ string, tasks map[batchmux.TaskID]batchmux.Task, out batchmux.Results) error {
	for id, t := range tasks {
		out[id] = "hello " + t.(greetTask).name
	}
	return nil
}

type greetTask struct {
	name string
}

func (t greetTask) BatchingKeys() batchmux.BatchingKeys {
	return batchmux.BatchingKeys{
		Handler:  "greet",
		BatchKey: batchmux.DefaultBatchKey,
		TaskKey:  t.name,
	}
}

func ExampleMultiTask() {
	reg := batchmux.NewRegistry()
	reg.Register("greet", greetHandler{})

	m := batchmux.Multi()
	_ = m.Add("a", greetTask{name: "alice"})
	_ = m.Add("b", greetTask{name: "bob"})
	_ = m.Add("a-again", greetTask{name: "alice"})

	tree, err := m.Execute(context.Background(), batchmux.WithRegistry(reg))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(tree["a"])
	fmt.Println(tree["b"])
	fmt.Println(tree["a-again"])
	// Output:
	// hello alice
	// hello bob
	// hello alice
}

func ExampleSequence() {
	reg := batchmux.NewRegistry()
	reg.Register("greet", greetHandler{})

	// The progression consumes the greeting and stages a follow-up task.
	shout := batchmux.Sequence(greetTask{name: "carol"}, func(result any) batchmux.Task {
		return batchmux.Simple(func(context.Context) (any, error) {
			return strings.ToUpper(result.(string)), nil
		})
	})

	engine, err := batchmux.NewEngine(batchmux.WithRegistry(reg))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	v, err := engine.Execute(context.Background(), shout)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(v)
	// Output:
	// HELLO CAROL
}
