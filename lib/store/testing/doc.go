// Package testing provides the shared test and benchmark suite for store.IStore
// implementations. The local engine, the replicated store and the network client all
// run the same suite:
//
//	func Test(t *testing.T) {
//		storetesting.RunIStoreTests(t, "LocalStore", func(t *testing.T) store.IStore {
//			return lstore.NewLocalStore()
//		})
//	}
package testing
