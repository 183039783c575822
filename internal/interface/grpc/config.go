package grpc_interface

import (
	"fmt"
	"net"
)

type Config struct {
	GRPCPort uint32
	HTTPPort uint32
}

func (c Config) Validate() error {
	if c.GRPCPort == c.HTTPPort {
		return fmt.Errorf("grpc and http ports must differ")
	}

	lis, err := net.Listen("tcp", c.grpcAddress())
	if err != nil {
		return fmt.Errorf("invalid grpc port: %s", err)
	}
	_ = lis.Close()

	lis, err = net.Listen("tcp", c.httpAddress())
	if err != nil {
		return fmt.Errorf("invalid http port: %s", err)
	}
	_ = lis.Close()

	return nil
}

func (c Config) grpcAddress() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

func (c Config) httpAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func (c Config) gatewayAddress() string {
	return fmt.Sprintf("127.0.0.1:%d", c.GRPCPort)
}
