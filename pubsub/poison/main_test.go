package poison_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	startedContainers = make([]testcontainers.Container, 0)
	redisAddr         = os.Getenv("REDIS_ADDR")
)

func TestMain(m *testing.M) {
	var code int
	defer func() {
		if r := recover(); r != nil {
			code = 1
			teardown(&code)
		}
	}()
	setup()
	defer teardown(&code)
	code = m.Run()
}

func setup() {
	if redisAddr != "" {
		return
	}

	fmt.Printf("\033[1;33m%s\033[0m", "> Setup redis container\n")
	ctx := context.Background()
	redisContainer, err := redis.RunContainer(ctx, testcontainers.WithImage("docker.io/redis:7"))
	if err != nil {
		panic(err)
	}
	startedContainers = append(startedContainers, redisContainer)

	uri, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		panic(err)
	}
	redisAddr = strings.Replace(uri, "redis://", "", 1)
}

func teardown(code *int) {
	ctx := context.Background()
	for _, container := range startedContainers {
		if err := container.Terminate(ctx); err != nil {
			fmt.Printf("\033[1;31m%s\033[0m", "> Teardown failed\n")
		}
	}

	os.Exit(*code)
}
