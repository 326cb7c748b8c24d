package choked_test

import (
	"context"
	"fmt"
	"time"

	choked "github.com/choked/choked-go"
	"github.com/choked/choked-go/store"
)

func ExampleWrap() {
	ctx := context.Background()

	st := store.NewMemory(ctx, time.Minute)
	tb, err := choked.NewTokenBucket(st, "5/s", "")
	if err != nil {
		fmt.Println(err)
		return
	}

	greet := choked.Wrap(tb, "greetings", func(ctx context.Context, name string) (string, error) {
		return "hello " + name, nil
	})

	out, err := greet(ctx, "world")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(out)
	// Output: hello world
}
