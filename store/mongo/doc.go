// Package mongo implements store.Store on the official MongoDB driver.
//
// Reservation is a single FindOneAndUpdate: the filter encodes the
// eligibility rules, the sort encodes reservation order, and the update
// writes the lock. MongoDB applies it to one document atomically, so two
// workers can never both claim the same job.
//
// Pass a database handle the caller owns, or let Connect open a client
// that Close will disconnect:
//
//	s, err := mongo.Connect(ctx, "mongodb://localhost:27017", "delayed")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//	s.Migrate(ctx)
package mongo
