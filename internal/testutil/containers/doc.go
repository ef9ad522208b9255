// Package containers starts the Docker services the edge talks to in
// integration tests, using testcontainers-go:
//
//   - MySQL 8.0, the alternative persistence backend
//   - Eclipse Mosquitto, the MQTT push source
//   - ntfy, an external notification target reached through shoutrrr
//
// Containers are usually shared through TestMain:
//
//	var mysqlContainer *containers.MySQLContainer
//
//	func TestMain(m *testing.M) {
//	    var err error
//	    mysqlContainer, err = containers.NewMySQLContainer(context.Background(), nil)
//	    if err != nil {
//	        panic(err)
//	    }
//	    code := m.Run()
//	    _ = mysqlContainer.Terminate(context.Background())
//	    os.Exit(code)
//	}
//
// Everything except this file is behind the "integration" build tag:
//
//	go test -tags=integration ./...
package containers
