package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"ticketing/pubsub"
	"ticketing/pubsub/poison"
)

func newQueue(c *cli.Context) (*poison.Queue, func(), error) {
	rdb := pubsub.NewRedisClient(c.String("redis-addr"))
	if err := rdb.Ping(c.Context).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("could not connect to redis: %w", err)
	}

	publisher := pubsub.NewRedisPublisher(rdb, watermill.NopLogger{})

	return poison.NewQueue(rdb, publisher), func() { _ = rdb.Close() }, nil
}

func main() {
	log.Init(logrus.InfoLevel)

	app := &cli.App{
		Name:  "poison-queue-cli",
		Usage: "Manage the Poison Queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "redis-addr",
				EnvVars: []string{"REDIS_ADDR"},
				Value:   "localhost:6379",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "preview",
				Usage: "preview messages",
				Action: func(c *cli.Context) error {
					q, closeQueue, err := newQueue(c)
					if err != nil {
						return err
					}
					defer closeQueue()

					messages, err := q.List(c.Context)
					if err != nil {
						return err
					}

					for _, m := range messages {
						fmt.Printf("%v\t%v\t%v\t%v\n", m.ID, m.Topic, m.Handler, m.Reason)
					}

					return nil
				},
			},
			{
				Name:      "remove",
				ArgsUsage: "<message_id>",
				Usage:     "remove message",
				Action: func(c *cli.Context) error {
					q, closeQueue, err := newQueue(c)
					if err != nil {
						return err
					}
					defer closeQueue()

					return q.Remove(c.Context, c.Args().First())
				},
			},
			{
				Name:      "requeue",
				ArgsUsage: "<message_id>",
				Usage:     "send message back to its original topic",
				Action: func(c *cli.Context) error {
					q, closeQueue, err := newQueue(c)
					if err != nil {
						return err
					}
					defer closeQueue()

					return q.Requeue(c.Context, c.Args().First())
				},
			},
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.FromContext(context.Background()).WithError(err).Fatal("Command failed")
	}
}
