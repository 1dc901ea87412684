package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli"
)

var loginCommand = cli.Command{
	Name:  "login",
	Usage: "obtain a new marketplace api key",
	Description: "Signs a login challenge with the node key and stores " +
		"the new api key in the credential file used by sellerd.",
	Action: login,
}

func login(ctx *cli.Context) error {
	services, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	cred, err := services.Credentials.Renew(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Stored %v\n", cred)

	return nil
}
