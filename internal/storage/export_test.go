package storage

var RunStoreConformance = runStoreConformance
