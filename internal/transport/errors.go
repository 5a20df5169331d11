package transport

import "fmt"

func errMTUTooSmall(mtu int) error {
	return fmt.Errorf("mtu %d too small to fit a %d-byte header", mtu, 17)
}

func errMaxRetries(v int) error {
	return fmt.Errorf("max_retries must be >= 1, got %d", v)
}

func errNonPositiveDuration(field string) error {
	return fmt.Errorf("%s must be positive", field)
}

func errMaxTotalDataSize(v int) error {
	return fmt.Errorf("max_total_data_size %d out of range (1..65536)", v)
}

func errMaxChunksPerTransfer(v int) error {
	return fmt.Errorf("max_chunks_per_transfer %d out of range (1..365)", v)
}

func errTooManyChunks(got, max int) error {
	return fmt.Errorf("too many chunks: %d exceeds limit %d", got, max)
}

func errPayloadTooLarge(got, max int) error {
	return fmt.Errorf("payload too large: %d bytes exceeds limit %d", got, max)
}

func errChunkNumOutOfRange(chunkNum, total uint16) error {
	return fmt.Errorf("chunk_num %d out of range for transfer of %d chunks", chunkNum, total)
}
